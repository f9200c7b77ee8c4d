package sample

import "fmt"

// MaxWindowSize is the largest supported window.
const MaxWindowSize = 10

// Sampler distributes conversion results round-robin over the channel windows.
//
// Each stored reading lands in the active channel's window at the shared
// write index and advances the channel cursor. The index only moves after a
// complete Ambient, Plant, UV triple, so all three windows always hold
// readings from the same slots.
type Sampler struct {
	windows [NumChannels]*Window
	cursor  Channel
	index   int
}

// NewSampler creates a sampler with windows of the given size.
func NewSampler(size int) (*Sampler, error) {
	if size < 1 || size > MaxWindowSize {
		return nil, fmt.Errorf("window size %d not in [1, %d]", size, MaxWindowSize)
	}

	s := &Sampler{}
	for i := range s.windows {
		s.windows[i] = NewWindow(size)
	}
	return s, nil
}

// Channel returns the channel the next reading belongs to.
func (s *Sampler) Channel() Channel {
	return s.cursor
}

// Index returns the current write index.
func (s *Sampler) Index() int {
	return s.index
}

// Size returns the window size.
func (s *Sampler) Size() int {
	return s.windows[0].Len()
}

// Window returns the window of channel ch.
func (s *Sampler) Window(ch Channel) *Window {
	return s.windows[ch]
}

// Store records a conversion result for the active channel and advances the
// cursor. It returns true when the store completed the window, i.e. the
// write index wrapped back to zero after a UV reading.
func (s *Sampler) Store(raw uint16) bool {
	s.windows[s.cursor].Set(s.index, raw)

	ch := s.cursor
	s.cursor = ch.Next()
	if ch != UV {
		return false
	}

	s.index++
	if s.index >= s.Size() {
		s.index = 0
		return true
	}
	return false
}
