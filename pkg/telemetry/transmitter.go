package telemetry

import (
	"fmt"
	"sync"

	"github.com/itohio/plantcare/pkg/i2c"
)

// Transmitter sends packets to the display unit, one byte per bus ready
// event. Send, OnReady and Wait belong to a single event loop; Pending and
// Active may be called from anywhere.
type Transmitter struct {
	mu       sync.Mutex
	bus      i2c.Controller
	addr     uint8
	buf      Packet
	index    int
	armed    bool
	polls    int
	maxPolls int
}

// NewTransmitter creates a transmitter for the display at addr. maxPolls
// bounds the idle polls between two ready events; zero means
// i2c.DefaultRetries.
func NewTransmitter(bus i2c.Controller, addr uint8, maxPolls int) *Transmitter {
	if maxPolls <= 0 {
		maxPolls = i2c.DefaultRetries
	}
	return &Transmitter{bus: bus, addr: addr, maxPolls: maxPolls}
}

// Send initiates transmission of p if the bus is idle. A busy bus drops
// the packet and Send returns false; there is no retry.
func (t *Transmitter) Send(p Packet) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.armed || t.bus.Status().Has(i2c.StatusBusy) {
		return false
	}
	t.buf = p
	t.index = 0
	t.polls = 0
	t.armed = true
	t.bus.Start(t.addr, i2c.Write)
	return true
}

// Pending reports whether a bus ready event is due: a transmission is in
// progress and the bus can take the next byte or has flagged a NACK.
func (t *Transmitter) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed {
		return false
	}
	s := t.bus.Status()
	return s.Has(i2c.StatusTxReady) || s.Has(i2c.StatusNack)
}

// Active reports whether a transmission is in progress.
func (t *Transmitter) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// OnReady handles one bus ready event. It loads the next byte, or after the
// last byte issues stop and disarms. done is true once the packet has been
// completed or aborted.
func (t *Transmitter) OnReady() (done bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed {
		return false, nil
	}
	if t.bus.Status().Has(i2c.StatusNack) {
		t.finish()
		return true, fmt.Errorf("display 0x%02x after %d bytes: %w", t.addr, t.index, i2c.ErrNack)
	}
	if t.index < Size {
		t.bus.Send(t.buf[t.index])
		t.index++
		t.polls = 0
		return false, nil
	}
	t.finish()
	return true, nil
}

// Wait records one poll of an armed transmission that found no ready event.
// When the poll budget runs out the transfer is stopped and abandoned and
// Wait returns an error wrapping i2c.ErrTimeout.
func (t *Transmitter) Wait() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed {
		return nil
	}
	t.polls++
	if t.polls < t.maxPolls {
		return nil
	}
	sent := t.index
	t.finish()
	return fmt.Errorf("display 0x%02x after %d bytes: %w after %d polls", t.addr, sent, i2c.ErrTimeout, t.maxPolls)
}

func (t *Transmitter) finish() {
	t.bus.Stop()
	t.armed = false
	t.index = 0
	t.polls = 0
}
