package rtc

// Encode converts a decimal value 0-99 to binary-coded decimal.
func Encode(d uint8) uint8 {
	return (d/10)*16 + d%10
}

// Decode converts a binary-coded decimal byte to its decimal value.
// Invalid nibbles are decoded arithmetically without error.
func Decode(b uint8) uint8 {
	return (b/16)*10 + b%16
}
