package i2c

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when a status flag did not reach the expected
	// state within the retry budget, e.g. a stalled bus or a missing pull-up.
	ErrTimeout = errors.New("i2c: bus timeout")
	// ErrNack is returned when the addressed target did not acknowledge.
	ErrNack = errors.New("i2c: no acknowledge")
)

// DefaultRetries is the poll budget used when a Poller has none configured.
const DefaultRetries = 10000

// Poller waits for controller flags with a bounded number of polls.
type Poller struct {
	Retries  int
	Interval time.Duration // Pause between polls, zero polls back to back
}

// WaitSet polls until every flag in f is set.
func (p Poller) WaitSet(ctx context.Context, c Controller, f Status, step string) error {
	return p.wait(ctx, c, step, func(s Status) bool { return s.Has(f) })
}

// WaitClear polls until every flag in f is clear.
func (p Poller) WaitClear(ctx context.Context, c Controller, f Status, step string) error {
	return p.wait(ctx, c, step, func(s Status) bool { return s&f == 0 })
}

func (p Poller) wait(ctx context.Context, c Controller, step string, done func(Status) bool) error {
	retries := p.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	for i := 0; i < retries; i++ {
		s := c.Status()
		if s.Has(StatusNack) {
			return fmt.Errorf("%s: %w", step, ErrNack)
		}
		if done(s) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		if p.Interval > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", step, ctx.Err())
			case <-time.After(p.Interval):
			}
		}
	}
	return fmt.Errorf("%s: %w after %d polls", step, ErrTimeout, retries)
}
