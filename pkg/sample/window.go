package sample

// Window is a fixed-length ring of raw ADC readings for one channel.
// Its length never changes after construction.
type Window struct {
	buf []uint16
}

// NewWindow creates a window holding size readings.
func NewWindow(size int) *Window {
	return &Window{buf: make([]uint16, size)}
}

// Len returns the window length.
func (w *Window) Len() int {
	return len(w.buf)
}

// Set stores a reading at index i.
func (w *Window) Set(i int, v uint16) {
	w.buf[i] = v
}

// Sum returns the sum of all readings in the window.
func (w *Window) Sum() uint32 {
	var sum uint32
	for _, v := range w.buf {
		sum += uint32(v)
	}
	return sum
}

// Mean returns the arithmetic mean of the readings.
func (w *Window) Mean() float64 {
	if len(w.buf) == 0 {
		return 0
	}
	return float64(w.Sum()) / float64(len(w.buf))
}

// Values returns a copy of the readings in slot order.
func (w *Window) Values() []uint16 {
	result := make([]uint16, len(w.buf))
	copy(result, w.buf)
	return result
}
