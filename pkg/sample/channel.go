package sample

// Channel identifies one of the sensed analog quantities.
type Channel uint8

const (
	Ambient Channel = iota // Ambient temperature sensor
	Plant                  // Plant (soil) temperature sensor
	UV                     // UV intensity sensor

	// NumChannels is the number of sampled channels.
	NumChannels = 3
)

// Next returns the channel sampled after c. The order is fixed:
// Ambient, Plant, UV, then back to Ambient.
func (c Channel) Next() Channel {
	if c >= UV {
		return Ambient
	}
	return c + 1
}

func (c Channel) String() string {
	switch c {
	case Ambient:
		return "ambient"
	case Plant:
		return "plant"
	case UV:
		return "uv"
	default:
		return "unknown"
	}
}
