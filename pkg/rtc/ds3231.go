// Package rtc drives a DS3231 real-time clock over a bus controller.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/itohio/plantcare/pkg/i2c"
)

// Address is the DS3231's fixed bus address.
const Address = 0x68

const (
	regSeconds = 0x00

	secondsPerHour   = 3600
	secondsPerMinute = 60
	// SecondsPerDay is the length of one clock day.
	SecondsPerDay = 24 * secondsPerHour
)

// Time is a wall clock reading with minute resolution.
type Time struct {
	Hours   uint8 `json:"hours"`
	Minutes uint8 `json:"minutes"`
}

// SecondsOfDay returns the seconds since midnight.
func (t Time) SecondsOfDay() uint32 {
	return uint32(t.Hours)*secondsPerHour + uint32(t.Minutes)*secondsPerMinute
}

// Valid reports whether t is a real time of day.
func (t Time) Valid() bool {
	return t.Hours < 24 && t.Minutes < 60
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hours, t.Minutes)
}

// DS3231 is a clock driver. Calls are serialised; the bus may be shared
// with other goroutines only through this driver.
type DS3231 struct {
	mu   sync.Mutex
	bus  i2c.Controller
	addr uint8
	poll i2c.Poller
}

// Option configures a DS3231.
type Option func(*DS3231)

// WithAddress overrides the bus address.
func WithAddress(addr uint8) Option {
	return func(d *DS3231) { d.addr = addr }
}

// WithPoller sets the readiness polling policy.
func WithPoller(p i2c.Poller) Option {
	return func(d *DS3231) { d.poll = p }
}

// New creates a clock driver on bus.
func New(bus i2c.Controller, opts ...Option) *DS3231 {
	d := &DS3231{
		bus:  bus,
		addr: Address,
		poll: i2c.Poller{Retries: i2c.DefaultRetries},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetTime writes hours and minutes and zeroes the seconds register.
func (d *DS3231) SetTime(ctx context.Context, t Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setTime(ctx, t); err != nil {
		d.bus.Stop()
		return fmt.Errorf("set time %v: %w", t, err)
	}
	return nil
}

func (d *DS3231) setTime(ctx context.Context, t Time) error {
	d.bus.Start(d.addr, i2c.Write)
	if err := d.poll.WaitClear(ctx, d.bus, i2c.StatusStart, "start"); err != nil {
		return err
	}

	for _, b := range []byte{regSeconds, Encode(0), Encode(t.Minutes), Encode(t.Hours)} {
		if err := d.poll.WaitSet(ctx, d.bus, i2c.StatusTxReady, "write"); err != nil {
			return err
		}
		d.bus.Send(b)
	}

	if err := d.poll.WaitSet(ctx, d.bus, i2c.StatusTxReady, "write"); err != nil {
		return err
	}
	d.bus.Stop()
	return d.poll.WaitClear(ctx, d.bus, i2c.StatusStop, "stop")
}

// GetTime reads hours and minutes. The seconds register is read and discarded.
func (d *DS3231) GetTime(ctx context.Context) (Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.getTime(ctx)
	if err != nil {
		d.bus.Stop()
		return Time{}, fmt.Errorf("get time: %w", err)
	}
	return t, nil
}

func (d *DS3231) getTime(ctx context.Context) (Time, error) {
	d.bus.Start(d.addr, i2c.Write)
	if err := d.poll.WaitClear(ctx, d.bus, i2c.StatusStart, "start"); err != nil {
		return Time{}, err
	}
	if err := d.poll.WaitSet(ctx, d.bus, i2c.StatusTxReady, "pointer"); err != nil {
		return Time{}, err
	}
	d.bus.Send(regSeconds)

	if err := d.poll.WaitSet(ctx, d.bus, i2c.StatusTxReady, "pointer"); err != nil {
		return Time{}, err
	}
	d.bus.Start(d.addr, i2c.Read)
	if err := d.poll.WaitClear(ctx, d.bus, i2c.StatusStart, "restart"); err != nil {
		return Time{}, err
	}

	var regs [3]byte // seconds, minutes, hours
	for i := range regs {
		if err := d.poll.WaitSet(ctx, d.bus, i2c.StatusRxReady, "read"); err != nil {
			return Time{}, err
		}
		regs[i] = d.bus.Recv()
	}

	d.bus.Stop()
	if err := d.poll.WaitClear(ctx, d.bus, i2c.StatusStop, "stop"); err != nil {
		return Time{}, err
	}

	return Time{Hours: Decode(regs[2]), Minutes: Decode(regs[1])}, nil
}
