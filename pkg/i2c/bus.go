// Package i2c models a two-wire bus controller at the level the controller
// firmware drives it: start and stop conditions, single byte transfers and
// status flags polled for readiness.
package i2c

// Direction selects the transfer direction of a (repeated) start.
type Direction uint8

const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Status is a bit set of controller flags.
type Status uint8

const (
	StatusBusy    Status = 1 << iota // A transaction is in progress
	StatusStart                      // Start condition still being generated
	StatusStop                       // Stop condition still being generated
	StatusTxReady                    // Transmit buffer accepts a byte
	StatusRxReady                    // Receive buffer holds a byte
	StatusNack                       // Target did not acknowledge
)

// Has reports whether all flags in f are set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

// Controller is a bus controller in master mode.
//
// Calls never block; completion is observed through Status. Start while a
// transaction is active issues a repeated start.
type Controller interface {
	Status() Status
	Start(addr uint8, dir Direction)
	Stop()
	Send(b byte)
	Recv() byte
}

// Target is a device attached to a simulated bus.
type Target interface {
	// Begin is called on every (repeated) start addressed to the target.
	// Returning false NACKs the address.
	Begin(dir Direction) bool
	Write(b byte)
	Read() byte
	// End is called on stop.
	End()
}
