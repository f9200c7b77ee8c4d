package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_Next(t *testing.T) {
	assert.Equal(t, Plant, Ambient.Next())
	assert.Equal(t, UV, Plant.Next())
	assert.Equal(t, Ambient, UV.Next())
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "ambient", Ambient.String())
	assert.Equal(t, "plant", Plant.String())
	assert.Equal(t, "uv", UV.String())
	assert.Equal(t, "unknown", Channel(7).String())
}

func TestNewSampler_InvalidSize(t *testing.T) {
	for _, size := range []int{-1, 0, MaxWindowSize + 1} {
		s, err := NewSampler(size)
		assert.Error(t, err, "size %d", size)
		assert.Nil(t, s)
	}
}

func TestSampler_CursorPeriod(t *testing.T) {
	s, err := NewSampler(4)
	require.NoError(t, err)

	// Whatever the window size, the cursor sequence has period 3.
	want := []Channel{Ambient, Plant, UV}
	for i := 0; i < 100; i++ {
		assert.Equal(t, want[i%3], s.Channel(), "event %d", i)
		s.Store(uint16(i))
	}
}

func TestSampler_IndexAdvancesAfterTriple(t *testing.T) {
	s, err := NewSampler(3)
	require.NoError(t, err)

	assert.False(t, s.Store(1)) // ambient
	assert.Equal(t, 0, s.Index())
	assert.False(t, s.Store(2)) // plant
	assert.Equal(t, 0, s.Index())
	assert.False(t, s.Store(3)) // uv
	assert.Equal(t, 1, s.Index())

	assert.Equal(t, []uint16{1, 0, 0}, s.Window(Ambient).Values())
	assert.Equal(t, []uint16{2, 0, 0}, s.Window(Plant).Values())
	assert.Equal(t, []uint16{3, 0, 0}, s.Window(UV).Values())
}

func TestSampler_FullWindowEveryWTriples(t *testing.T) {
	for size := 1; size <= MaxWindowSize; size++ {
		s, err := NewSampler(size)
		require.NoError(t, err)

		full := 0
		conversions := size * NumChannels * 5
		for i := 0; i < conversions; i++ {
			if s.Store(uint16(i)) {
				full++
				assert.Equal(t, 0, s.Index())
				assert.Equal(t, Ambient, s.Channel())
			}
			assert.Less(t, s.Index(), size)
		}
		assert.Equal(t, 5, full, "size %d", size)
	}
}

func TestSampler_MeanOfLastWSamples(t *testing.T) {
	s, err := NewSampler(3)
	require.NoError(t, err)

	// Two full cycles; only the second cycle must remain in the windows.
	ambient := []uint16{4000, 4000, 4000, 1000, 1010, 1020}
	plant := []uint16{0, 0, 0, 1005, 1015, 1025}
	uv := []uint16{9, 9, 9, 30, 60, 90}

	fulls := 0
	for i := range ambient {
		s.Store(ambient[i])
		s.Store(plant[i])
		if s.Store(uv[i]) {
			fulls++
		}
	}
	require.Equal(t, 2, fulls)

	assert.Equal(t, 1010.0, s.Window(Ambient).Mean())
	assert.Equal(t, 1015.0, s.Window(Plant).Mean())
	assert.Equal(t, 60.0, s.Window(UV).Mean())
	assert.Equal(t, uint32(3030), s.Window(Ambient).Sum())
}

func TestWindow_FixedLength(t *testing.T) {
	w := NewWindow(5)
	assert.Equal(t, 5, w.Len())
	w.Set(4, 10)
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, 2.0, w.Mean())

	values := w.Values()
	values[4] = 99
	assert.Equal(t, uint16(10), w.Values()[4], "Values must return a copy")
}
