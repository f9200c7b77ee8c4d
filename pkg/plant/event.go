package plant

import (
	"fmt"

	"github.com/itohio/plantcare/pkg/telemetry"
)

// Event is anything the controller loop dispatches.
type Event interface {
	fmt.Stringer
	event()
}

// Tick starts a conversion on the active channel.
type Tick struct{}

// Conversion carries a completed analog conversion.
type Conversion struct {
	Value uint16
}

// BusReady signals that the display bus can take the next byte or has
// flagged a NACK.
type BusReady struct{}

// Heartbeat toggles the status LEDs.
type Heartbeat struct{}

// Transmit asks the loop to start sending a packet built by the worker.
type Transmit struct {
	Packet telemetry.Packet
}

func (Tick) event()       {}
func (Conversion) event() {}
func (BusReady) event()   {}
func (Heartbeat) event()  {}
func (Transmit) event()   {}

func (Tick) String() string         { return "tick" }
func (e Conversion) String() string { return fmt.Sprintf("conversion(%d)", e.Value) }
func (BusReady) String() string     { return "bus-ready" }
func (Heartbeat) String() string    { return "heartbeat" }
func (e Transmit) String() string   { return fmt.Sprintf("transmit(% x)", e.Packet[:]) }
