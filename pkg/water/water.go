// Package water decides when the plant gets watered and drives the
// two-servo valve through its fixed open-loop sequence.
package water

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/plantcare/pkg/rtc"
)

const (
	DefaultMaxDelta = 2
	DefaultCooldown = 600 * time.Second

	DefaultOpenDuration  = 1 * time.Second
	DefaultPauseDuration = 3 * time.Second
	DefaultCloseDuration = 1 * time.Second
)

// Pulse is a pair of servo pulse widths in microseconds.
type Pulse struct {
	Left  uint16
	Right uint16
}

var (
	PulseOpen    = Pulse{Left: 1200, Right: 1800}
	PulseNeutral = Pulse{Left: 1500, Right: 1500}
	PulseClose   = Pulse{Left: 1800, Right: 1200}
)

// Servo drives both valve servos.
type Servo interface {
	Set(p Pulse)
}

// Clock supplies the current time of day.
type Clock interface {
	GetTime(ctx context.Context) (rtc.Time, error)
}

// Timing holds the durations of the actuation sequence.
type Timing struct {
	Open  time.Duration
	Pause time.Duration
	Close time.Duration
}

// DefaultTiming returns the stock 1 s open, 3 s pause, 1 s close sequence.
func DefaultTiming() Timing {
	return Timing{
		Open:  DefaultOpenDuration,
		Pause: DefaultPauseDuration,
		Close: DefaultCloseDuration,
	}
}

// State is the watering bookkeeping. It lives for the process lifetime.
type State struct {
	LastMove     uint32 `json:"last_move"` // Seconds of day of the last actuation
	Cooldown     uint32 `json:"cooldown"`  // Seconds
	TimesWatered uint8  `json:"times_watered"`
}

// AbsDiff returns |a - b| for unsigned bytes.
func AbsDiff(a, b uint8) uint8 {
	return max(a, b) - min(a, b)
}

// Elapsed returns the seconds from last to now within a day. A now earlier
// than last is taken to be on the following day.
func Elapsed(now, last uint32) uint32 {
	if now >= last {
		return now - last
	}
	return now + rtc.SecondsPerDay - last
}

// ShouldWater is the watering gate.
func ShouldWater(delta, maxDelta uint8, elapsed, cooldown uint32) bool {
	return delta <= maxDelta && elapsed >= cooldown
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller evaluates the gate and runs the actuation sequence. Evaluate
// blocks for the whole sequence and must not be called from the event loop.
type Controller struct {
	mu       sync.Mutex
	clock    Clock
	servo    Servo
	state    State
	maxDelta uint8
	timing   Timing
	sleep    SleepFunc
	log      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

func WithMaxDelta(d uint8) Option {
	return func(c *Controller) { c.maxDelta = d }
}

func WithCooldown(d time.Duration) Option {
	return func(c *Controller) { c.state.Cooldown = uint32(d / time.Second) }
}

func WithTiming(t Timing) Option {
	return func(c *Controller) { c.timing = t }
}

// WithSleep replaces the delay used between sequence steps.
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithState seeds the bookkeeping, e.g. to resume a known last move.
func WithState(s State) Option {
	return func(c *Controller) { c.state = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates a watering controller. The servos are put to
// neutral.
func NewController(clock Clock, servo Servo, opts ...Option) *Controller {
	c := &Controller{
		clock:    clock,
		servo:    servo,
		state:    State{Cooldown: uint32(DefaultCooldown / time.Second)},
		maxDelta: DefaultMaxDelta,
		timing:   DefaultTiming(),
		sleep:    Sleep,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.servo.Set(PulseNeutral)
	return c
}

// State returns a copy of the bookkeeping.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TimesWatered returns the actuation counter.
func (c *Controller) TimesWatered() uint8 {
	return c.State().TimesWatered
}

// Evaluate waters the plant if the temperature delta and the cooldown allow
// it. The clock is only read when the delta check passes. It reports whether
// an actuation completed.
func (c *Controller) Evaluate(ctx context.Context, ambient, plant uint8) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delta := AbsDiff(ambient, plant)
	if delta > c.maxDelta {
		return false, nil
	}

	now, err := c.clock.GetTime(ctx)
	if err != nil {
		return false, fmt.Errorf("read clock: %w", err)
	}
	secs := now.SecondsOfDay()

	elapsed := Elapsed(secs, c.state.LastMove)
	if !ShouldWater(delta, c.maxDelta, elapsed, c.state.Cooldown) {
		c.log.Debug("watering on cooldown", "elapsed", elapsed, "cooldown", c.state.Cooldown)
		return false, nil
	}

	c.log.Info("watering", "time", now, "delta", delta)
	if err := c.actuate(ctx); err != nil {
		return false, fmt.Errorf("actuate: %w", err)
	}

	c.state.TimesWatered++
	c.state.LastMove = secs
	return true, nil
}

// actuate runs open, neutral, pause, close, neutral. On cancellation the
// servos are returned to neutral.
func (c *Controller) actuate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			c.servo.Set(PulseNeutral)
		}
	}()

	c.servo.Set(PulseOpen)
	if err := c.sleep(ctx, c.timing.Open); err != nil {
		return err
	}
	c.servo.Set(PulseNeutral)
	if err := c.sleep(ctx, c.timing.Pause); err != nil {
		return err
	}
	c.servo.Set(PulseClose)
	if err := c.sleep(ctx, c.timing.Close); err != nil {
		return err
	}
	c.servo.Set(PulseNeutral)
	return nil
}
