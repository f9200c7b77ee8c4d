package plant

import (
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

// Fault stages.
const (
	StageClock     = "clock"
	StageWatering  = "watering"
	StageTelemetry = "telemetry"
)

// Observer is notified of controller activity. Callbacks run on the loop or
// worker goroutine and must not block.
type Observer interface {
	CycleCompleted(r sample.Readings)
	CycleDropped()
	PacketSent(p telemetry.Packet)
	PacketDropped(p telemetry.Packet)
	Watered(s water.State)
	Fault(stage string, err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset.
type NopObserver struct{}

func (NopObserver) CycleCompleted(sample.Readings) {}
func (NopObserver) CycleDropped()                  {}
func (NopObserver) PacketSent(telemetry.Packet)    {}
func (NopObserver) PacketDropped(telemetry.Packet) {}
func (NopObserver) Watered(water.State)            {}
func (NopObserver) Fault(string, error)            {}

// Observers fans out to every element.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) CycleCompleted(r sample.Readings) {
	for _, x := range o {
		x.CycleCompleted(r)
	}
}

func (o Observers) CycleDropped() {
	for _, x := range o {
		x.CycleDropped()
	}
}

func (o Observers) PacketSent(p telemetry.Packet) {
	for _, x := range o {
		x.PacketSent(p)
	}
}

func (o Observers) PacketDropped(p telemetry.Packet) {
	for _, x := range o {
		x.PacketDropped(p)
	}
}

func (o Observers) Watered(s water.State) {
	for _, x := range o {
		x.Watered(s)
	}
}

func (o Observers) Fault(stage string, err error) {
	for _, x := range o {
		x.Fault(stage, err)
	}
}
