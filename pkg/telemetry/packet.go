// Package telemetry builds the packet sent to the display unit and feeds it
// onto the bus one byte per ready event.
package telemetry

import (
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
)

// DisplayAddress is the bus address of the display unit.
const DisplayAddress = 0x01

// Size is the packet length in bytes.
const Size = 7

// Field offsets within a Packet.
const (
	OffsetHours = iota
	OffsetMinutes
	OffsetAmbientInt
	OffsetAmbientDec
	OffsetPlantInt
	OffsetPlantDec
	OffsetTimesWatered
)

// Packet is the fixed-layout telemetry record.
type Packet [Size]byte

// Build assembles a packet from the clock, the latest readings and the
// watering counter.
func Build(t rtc.Time, r sample.Readings, timesWatered uint8) Packet {
	return Packet{
		OffsetHours:        t.Hours,
		OffsetMinutes:      t.Minutes,
		OffsetAmbientInt:   r.Ambient.Int,
		OffsetAmbientDec:   r.Ambient.Dec,
		OffsetPlantInt:     r.Plant.Int,
		OffsetPlantDec:     r.Plant.Dec,
		OffsetTimesWatered: timesWatered,
	}
}

// Time returns the clock fields.
func (p Packet) Time() rtc.Time {
	return rtc.Time{Hours: p[OffsetHours], Minutes: p[OffsetMinutes]}
}

// Ambient returns the ambient temperature fields.
func (p Packet) Ambient() sample.Temperature {
	return sample.Temperature{Int: p[OffsetAmbientInt], Dec: p[OffsetAmbientDec]}
}

// Plant returns the plant temperature fields.
func (p Packet) Plant() sample.Temperature {
	return sample.Temperature{Int: p[OffsetPlantInt], Dec: p[OffsetPlantDec]}
}

// TimesWatered returns the watering counter.
func (p Packet) TimesWatered() uint8 {
	return p[OffsetTimesWatered]
}
