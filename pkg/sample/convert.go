package sample

import (
	"math"

	"github.com/chewxy/math32"
)

const (
	// Default analog front-end constants.
	DefaultVRef      = 3.3
	DefaultFullScale = 4095

	// Thermistor linearisation curve coefficients.
	curveOffset = -1481.96
	curveBase   = 2.1962e6
	curveV0     = 1.8639
	curveSlope  = 3.88e-6

	// The curve output is scaled down by this divisor before splitting into
	// integer and first decimal digit.
	tempDivisor = 8

	uvScale = 10
)

// Temperature is a scaled temperature split into its integer part and first
// decimal digit.
type Temperature struct {
	Int uint8
	Dec uint8
}

// Readings holds the values derived from one completed window.
type Readings struct {
	Ambient Temperature
	Plant   Temperature
	UV      uint8 // Intensity level, 0-10 expected, larger values overflow

	AmbientVolts float32
	PlantVolts   float32
	UVVolts      float32
}

// Converter turns raw window sums into voltages, temperatures and UV levels.
type Converter struct {
	VRef      float32
	FullScale float32
}

// NewConverter creates a converter; zero arguments fall back to the defaults.
func NewConverter(vref, fullScale float64) Converter {
	if vref <= 0 {
		vref = DefaultVRef
	}
	if fullScale <= 0 {
		fullScale = DefaultFullScale
	}
	return Converter{VRef: float32(vref), FullScale: float32(fullScale)}
}

// Voltage converts a mean raw reading to volts.
func (c Converter) Voltage(mean float64) float32 {
	return float32(mean * float64(c.VRef) / float64(c.FullScale))
}

// Compute averages every channel window of s and derives the readings.
func (c Converter) Compute(s *Sampler) Readings {
	av := c.Voltage(s.Window(Ambient).Mean())
	pv := c.Voltage(s.Window(Plant).Mean())
	uv := c.Voltage(s.Window(UV).Mean())

	return Readings{
		Ambient:      SplitTemperature(Thermistor(av)),
		Plant:        SplitTemperature(Thermistor(pv)),
		UV:           UVLevel(uv),
		AmbientVolts: av,
		PlantVolts:   pv,
		UVVolts:      uv,
	}
}

// Thermistor applies the sensor's linearisation curve to a voltage. The
// curve is evaluated in double precision; the large offset and root cancel
// to a small result.
func Thermistor(v float32) float32 {
	return float32(curveOffset + math.Sqrt(curveBase+(curveV0-float64(v))/curveSlope))
}

// SplitTemperature scales t by the fixed divisor and splits it into integer
// part and first decimal digit. Out of range values saturate.
func SplitTemperature(t float32) Temperature {
	scaled := t / tempDivisor
	if math32.IsNaN(scaled) || scaled <= 0 {
		return Temperature{}
	}
	if scaled >= 255 {
		return Temperature{Int: 255, Dec: 9}
	}

	i := uint8(scaled)
	d := uint8((scaled - float32(i)) * 10)
	if d > 9 {
		d = 9
	}
	return Temperature{Int: i, Dec: d}
}

// UVLevel converts the UV sensor voltage to an intensity level.
func UVLevel(v float32) uint8 {
	level := v * uvScale
	if math32.IsNaN(level) || level <= 0 {
		return 0
	}
	if level >= 255 {
		return 255
	}
	return uint8(level)
}
