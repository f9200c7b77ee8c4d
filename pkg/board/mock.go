package board

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/plantcare/pkg/config"
	"github.com/itohio/plantcare/pkg/display"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
)

const maxRaw = 4095

// Mock simulates the controller board: an analog front-end, the valve
// servos, heartbeat LEDs, the UV digit and two buses. By default the clock
// and display buses carry a simulated DS3231 and a packet recorder; with a
// bridge both buses go to real devices instead.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	startTime time.Time

	// Peripheral state
	leds     [2]bool
	segments display.Pattern
	pulse    water.Pulse

	clockBus   i2c.Controller
	displayBus i2c.Controller
	clock      *rtc.DS3231
	clockSim   *rtc.Sim
	recorder   *telemetry.Recorder
	bridge     *i2c.Bridge
}

// MockOption configures a Mock.
type MockOption func(*mockOptions)

type mockOptions struct {
	bridge    *i2c.Bridge
	poller    i2c.Poller
	clockAddr uint8
	dispAddr  uint8
	clockTime rtc.Time
}

// WithBridge routes both buses through a serial bridge adapter.
func WithBridge(b *i2c.Bridge) MockOption {
	return func(o *mockOptions) { o.bridge = b }
}

// WithPoller sets the clock driver's polling policy.
func WithPoller(p i2c.Poller) MockOption {
	return func(o *mockOptions) { o.poller = p }
}

// WithAddresses overrides the clock and display bus addresses.
func WithAddresses(clock, disp uint8) MockOption {
	return func(o *mockOptions) {
		o.clockAddr = clock
		o.dispAddr = disp
	}
}

// WithClockTime sets the simulated clock's power-on time.
func WithClockTime(t rtc.Time) MockOption {
	return func(o *mockOptions) { o.clockTime = t }
}

// NewMock creates a simulated board.
func NewMock(cfg *config.MockConfig, opts ...MockOption) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	o := mockOptions{
		poller:    i2c.Poller{Retries: i2c.DefaultRetries},
		clockAddr: rtc.Address,
		dispAddr:  telemetry.DisplayAddress,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Mock{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		bridge: o.bridge,
	}

	if o.bridge != nil {
		m.clockBus = i2c.NewTxController(o.bridge)
		m.displayBus = i2c.NewTxController(o.bridge)
	} else {
		m.clockSim = rtc.NewSim(o.clockTime, cfg.ClockSpeed)
		m.recorder = telemetry.NewRecorder(nil)

		clockBus := i2c.NewSim()
		clockBus.Attach(o.clockAddr, m.clockSim)
		displayBus := i2c.NewSim()
		displayBus.Attach(o.dispAddr, m.recorder)
		m.clockBus, m.displayBus = clockBus, displayBus
	}
	m.clock = rtc.New(m.clockBus, rtc.WithAddress(o.clockAddr), rtc.WithPoller(o.poller))

	return m
}

// Connect powers up the simulated board.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	m.startTime = time.Now()
	return nil
}

// Close stops pending conversions and releases the bridge.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}
	m.cancel()
	m.connected = false

	if m.bridge != nil {
		if err := m.bridge.Close(); err != nil {
			return fmt.Errorf("failed to close bridge: %w", err)
		}
	}
	return nil
}

// IsConnected returns whether the board is powered up.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Hardware returns the peripherals for the controller.
func (m *Mock) Hardware() plant.Hardware {
	return plant.Hardware{
		ADC:        (*mockADC)(m),
		LEDs:       (*mockLEDs)(m),
		Segments:   (*mockSegments)(m),
		DisplayBus: m.displayBus,
		Clock:      m.clock,
	}
}

// Servo returns the valve servos.
func (m *Mock) Servo() water.Servo {
	return (*mockServo)(m)
}

// ClockSim returns the simulated clock, nil when bridged.
func (m *Mock) ClockSim() *rtc.Sim {
	return m.clockSim
}

// Recorder returns the simulated display, nil when bridged.
func (m *Mock) Recorder() *telemetry.Recorder {
	return m.recorder
}

// LEDs returns the heartbeat LED states.
func (m *Mock) LEDs() [2]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leds
}

// Segments returns the pattern on the UV digit.
func (m *Mock) Segments() display.Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.segments
}

// Pulse returns the current servo pulse widths.
func (m *Mock) Pulse() water.Pulse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pulse
}

// generateSample simulates one conversion of ch.
func (m *Mock) generateSample(ch sample.Channel) uint16 {
	m.mu.RLock()
	elapsed := time.Since(m.startTime)
	m.mu.RUnlock()

	var mean uint16
	switch ch {
	case sample.Ambient:
		mean = m.cfg.AmbientRaw
	case sample.Plant:
		mean = m.cfg.PlantRaw
	case sample.UV:
		mean = m.cfg.UVRaw
	}

	// Add noise
	t := float64(elapsed.Nanoseconds()) * float64(ch+1)
	noise := (math.Sin(t*0.001) + math.Cos(t*0.0013)) * float64(m.cfg.Noise) * 0.5

	v := float64(mean) + noise
	if v < 0 {
		v = 0
	} else if v > maxRaw {
		v = maxRaw
	}
	return uint16(v)
}

type mockADC Mock

func (a *mockADC) Start(ch sample.Channel, done func(raw uint16)) {
	m := (*Mock)(a)

	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()

	go func() {
		if m.cfg.ConversionDelay > 0 {
			t := time.NewTimer(m.cfg.ConversionDelay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
		done(m.generateSample(ch))
	}()
}

type mockLEDs Mock

func (l *mockLEDs) Toggle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leds[0] = !l.leds[0]
	l.leds[1] = !l.leds[1]
}

type mockSegments Mock

func (s *mockSegments) WriteSegments(p display.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = p
}

type mockServo Mock

func (s *mockServo) Set(p water.Pulse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulse = p
}
