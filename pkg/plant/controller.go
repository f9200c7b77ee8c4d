// Package plant is the sensing and control core. Hardware events are
// delivered as Event values to a single loop; clock reads and watering run
// on a deferred worker so the loop never blocks on the bus or the servos.
package plant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/plantcare/pkg/display"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

const (
	eventQueueSize  = 16
	busPollInterval = time.Millisecond

	// busyStreakFault is the number of consecutive packets dropped on a
	// busy display bus that raises a telemetry fault.
	busyStreakFault = 3
)

// ADC starts a conversion of ch; done is called with the raw result, from
// any goroutine.
type ADC interface {
	Start(ch sample.Channel, done func(raw uint16))
}

// LEDs are the heartbeat indicators.
type LEDs interface {
	Toggle()
}

// Clock is the real-time clock.
type Clock interface {
	GetTime(ctx context.Context) (rtc.Time, error)
	SetTime(ctx context.Context, t rtc.Time) error
}

// Waterer decides on and performs watering. Evaluate may block for the
// whole actuation.
type Waterer interface {
	Evaluate(ctx context.Context, ambient, plant uint8) (bool, error)
	State() water.State
}

// Hardware is the set of peripherals the controller drives.
type Hardware struct {
	ADC        ADC
	LEDs       LEDs
	Segments   display.Writer
	DisplayBus i2c.Controller
	Clock      Clock
}

// Settings are the fixed run-time parameters.
type Settings struct {
	WindowSize      int
	TickPeriod      time.Duration
	HeartbeatPeriod time.Duration
	BusRetries      int
	VRef            float64
	FullScale       float64
	DisplayAddress  uint8
}

// DefaultSettings returns the stock board settings.
func DefaultSettings() Settings {
	return Settings{
		WindowSize:      3,
		TickPeriod:      5 * time.Second,
		HeartbeatPeriod: time.Second,
		BusRetries:      i2c.DefaultRetries,
		VRef:            sample.DefaultVRef,
		FullScale:       sample.DefaultFullScale,
		DisplayAddress:  telemetry.DisplayAddress,
	}
}

// Status is a snapshot of the controller state.
type Status struct {
	Readings     sample.Readings              `json:"readings"`
	Raw          [sample.NumChannels][]uint16 `json:"raw"`
	HasReadings  bool                         `json:"has_readings"`
	Time         rtc.Time                     `json:"time"`
	LastPacket   telemetry.Packet             `json:"last_packet"`
	Water        water.State                  `json:"water"`
	DisplayLevel uint8                        `json:"display_level"`

	Cycles         uint64 `json:"cycles"`
	CyclesDropped  uint64 `json:"cycles_dropped"`
	PacketsSent    uint64 `json:"packets_sent"`
	PacketsDropped uint64 `json:"packets_dropped"`
	Faults         uint64 `json:"faults"`
	LastError      string `json:"last_error,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithObserver adds an observer; may be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.obs = append(c.obs, o) }
}

// WithBootTime makes Run set the clock to t before sampling starts.
func WithBootTime(t rtc.Time) Option {
	return func(c *Controller) { c.bootTime = &t }
}

// Controller is the controller state aggregate. Sampler, display and
// transmitter state belong to the goroutine calling Handle; clock and
// watering belong to the worker.
type Controller struct {
	log      *slog.Logger
	obs      Observers
	settings Settings
	hw       Hardware
	water    Waterer
	bootTime *rtc.Time

	sampler  *sample.Sampler
	conv     sample.Converter
	display  *display.Driver
	tx       *telemetry.Transmitter
	inflight telemetry.Packet
	busy     int

	events chan Event
	cycles chan sample.Readings

	mu     sync.Mutex
	status Status
}

// New creates a controller. The display is reset to level 0.
func New(s Settings, hw Hardware, w Waterer, opts ...Option) (*Controller, error) {
	sampler, err := sample.NewSampler(s.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	c := &Controller{
		log:      slog.Default(),
		settings: s,
		hw:       hw,
		water:    w,
		sampler:  sampler,
		conv:     sample.NewConverter(s.VRef, s.FullScale),
		display:  display.NewDriver(hw.Segments),
		tx:       telemetry.NewTransmitter(hw.DisplayBus, s.DisplayAddress, s.BusRetries),
		events:   make(chan Event, eventQueueSize),
		cycles:   make(chan sample.Readings, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.display.Reset()
	c.status.Water = w.State()
	return c, nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Clock returns the clock; it is safe for concurrent use.
func (c *Controller) Clock() Clock {
	return c.hw.Clock
}

// Post queues ev without blocking. It returns false if the queue is full
// and the event was dropped.
func (c *Controller) Post(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Handle dispatches one event. It never blocks.
func (c *Controller) Handle(ev Event) {
	switch e := ev.(type) {
	case Tick:
		ch := c.sampler.Channel()
		c.log.Debug("conversion started", "channel", ch, "slot", c.sampler.Index())
		c.hw.ADC.Start(ch, c.converted)
	case Conversion:
		c.onConversion(e.Value)
	case BusReady:
		c.onBusReady()
	case Heartbeat:
		c.hw.LEDs.Toggle()
	case Transmit:
		c.onTransmit(e.Packet)
	default:
		c.log.Warn("unhandled event", "event", ev)
	}
}

func (c *Controller) converted(raw uint16) {
	if !c.Post(Conversion{Value: raw}) {
		c.log.Warn("event queue full, conversion lost", "raw", raw)
	}
}

func (c *Controller) onConversion(raw uint16) {
	if !c.sampler.Store(raw) {
		return
	}

	r := c.conv.Compute(c.sampler)
	c.display.Update(r.UV)
	level, _ := c.display.Level()

	var windows [sample.NumChannels][]uint16
	for ch := range windows {
		windows[ch] = c.sampler.Window(sample.Channel(ch)).Values()
	}

	c.mu.Lock()
	c.status.Readings = r
	c.status.Raw = windows
	c.status.HasReadings = true
	c.status.DisplayLevel = level
	c.status.Cycles++
	c.mu.Unlock()

	c.log.Debug("window complete",
		"ambient", fmt.Sprintf("%d.%d", r.Ambient.Int, r.Ambient.Dec),
		"plant", fmt.Sprintf("%d.%d", r.Plant.Int, r.Plant.Dec),
		"uv", r.UV)
	c.obs.CycleCompleted(r)
	c.offer(r)
}

// offer hands r to the worker. The slot holds only the latest cycle: one
// still waiting there is replaced and counted as dropped.
func (c *Controller) offer(r sample.Readings) {
	for {
		select {
		case c.cycles <- r:
			return
		default:
		}

		select {
		case <-c.cycles:
			c.mu.Lock()
			c.status.CyclesDropped++
			c.mu.Unlock()
			c.log.Warn("worker busy, stale cycle replaced")
			c.obs.CycleDropped()
		default:
		}
	}
}

func (c *Controller) onTransmit(p telemetry.Packet) {
	if !c.tx.Send(p) {
		c.busy++
		c.mu.Lock()
		c.status.PacketsDropped++
		c.mu.Unlock()
		c.log.Debug("display bus busy, packet dropped", "streak", c.busy)
		c.obs.PacketDropped(p)
		if c.busy == busyStreakFault {
			c.fault(StageTelemetry, fmt.Errorf("display bus busy for %d packets: %w", c.busy, i2c.ErrTimeout))
		}
		return
	}
	c.busy = 0
	c.inflight = p
}

// onBusWait counts a bus poll without a ready event against the
// transmitter's budget.
func (c *Controller) onBusWait() {
	if err := c.tx.Wait(); err != nil {
		c.fault(StageTelemetry, err)
	}
}

func (c *Controller) onBusReady() {
	done, err := c.tx.OnReady()
	if !done {
		return
	}
	if err != nil {
		c.fault(StageTelemetry, err)
		return
	}

	c.mu.Lock()
	c.status.PacketsSent++
	c.status.LastPacket = c.inflight
	c.mu.Unlock()
	c.obs.PacketSent(c.inflight)
}

func (c *Controller) fault(stage string, err error) {
	c.mu.Lock()
	c.status.Faults++
	c.status.LastError = fmt.Sprintf("%s: %v", stage, err)
	c.mu.Unlock()

	c.log.Error("fault", "stage", stage, "err", err)
	c.obs.Fault(stage, err)
}

// Run drives the controller until ctx is cancelled: it sets the boot time,
// starts the worker and dispatches timer and hardware events. Pending bus
// ready events go before anything else in the queue.
func (c *Controller) Run(ctx context.Context) error {
	if c.bootTime != nil {
		if err := c.hw.Clock.SetTime(ctx, *c.bootTime); err != nil {
			c.fault(StageClock, fmt.Errorf("boot time: %w", err))
		} else {
			c.log.Info("clock set", "time", *c.bootTime)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.worker(ctx)
	}()
	defer wg.Wait()

	tick := time.NewTicker(c.settings.TickPeriod)
	defer tick.Stop()
	heartbeat := time.NewTicker(c.settings.HeartbeatPeriod)
	defer heartbeat.Stop()

	c.log.Info("controller started",
		"window", c.settings.WindowSize,
		"tick", c.settings.TickPeriod)

	for {
		if c.tx.Pending() {
			if ctx.Err() != nil {
				break
			}
			c.Handle(BusReady{})
			continue
		}

		var busPoll <-chan time.Time
		if c.tx.Active() {
			busPoll = time.After(busPollInterval)
		}

		select {
		case <-ctx.Done():
			c.log.Info("controller stopped")
			return nil
		case <-tick.C:
			if !c.Post(Tick{}) {
				c.log.Debug("event queue full, tick dropped")
			}
		case <-heartbeat.C:
			c.Post(Heartbeat{})
		case ev := <-c.events:
			c.Handle(ev)
		case <-busPoll:
			c.onBusWait()
		}
	}

	c.log.Info("controller stopped")
	return nil
}

// worker handles completed cycles: it reads the clock, hands the packet to
// the loop and then evaluates watering.
func (c *Controller) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-c.cycles:
			c.process(ctx, r)
		}
	}
}

func (c *Controller) process(ctx context.Context, r sample.Readings) {
	now, err := c.hw.Clock.GetTime(ctx)
	if err != nil {
		c.fault(StageClock, err)
		return
	}

	c.mu.Lock()
	c.status.Time = now
	c.mu.Unlock()

	p := telemetry.Build(now, r, c.water.State().TimesWatered)
	select {
	case c.events <- Transmit{Packet: p}:
	case <-ctx.Done():
		return
	}

	watered, err := c.water.Evaluate(ctx, r.Ambient.Int, r.Plant.Int)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Info("watering interrupted")
			return
		}
		c.fault(StageWatering, err)
		return
	}
	if !watered {
		return
	}

	s := c.water.State()
	c.mu.Lock()
	c.status.Water = s
	c.mu.Unlock()
	c.obs.Watered(s)
}
