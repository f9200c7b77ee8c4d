package plant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/plantcare/pkg/display"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/telemetry"
	"github.com/itohio/plantcare/pkg/water"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptADC returns a fixed reading per channel and records the channels
// it was started on.
type scriptADC struct {
	mu       sync.Mutex
	values   [sample.NumChannels]uint16
	channels []sample.Channel
	async    bool
}

func (a *scriptADC) Start(ch sample.Channel, done func(uint16)) {
	a.mu.Lock()
	a.channels = append(a.channels, ch)
	v := a.values[ch]
	a.mu.Unlock()

	if a.async {
		go done(v)
		return
	}
	done(v)
}

func (a *scriptADC) started() []sample.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sample.Channel(nil), a.channels...)
}

type ledCounter struct{ n atomic.Int32 }

func (l *ledCounter) Toggle() { l.n.Add(1) }

type segLog struct {
	mu  sync.Mutex
	out []display.Pattern
}

func (s *segLog) WriteSegments(p display.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, p)
}

type servoLog struct {
	mu     sync.Mutex
	pulses []water.Pulse
}

func (s *servoLog) Set(p water.Pulse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulses = append(s.pulses, p)
}

func noSleep(context.Context, time.Duration) error { return nil }

func frozen() func() time.Time {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

type harness struct {
	ctrl       *Controller
	adc        *scriptADC
	leds       *ledCounter
	segs       *segLog
	servo      *servoLog
	rec        *telemetry.Recorder
	displayBus *i2c.Sim
	clock      *rtc.Sim
}

func newHarness(t *testing.T, start rtc.Time, s Settings, wopts []water.Option, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		adc:        &scriptADC{},
		leds:       &ledCounter{},
		segs:       &segLog{},
		servo:      &servoLog{},
		rec:        telemetry.NewRecorder(nil),
		displayBus: i2c.NewSim(),
		clock:      rtc.NewSim(start, 1),
	}
	h.displayBus.Attach(telemetry.DisplayAddress, h.rec)
	h.clock.SetNow(frozen())
	clockBus := i2c.NewSim()
	clockBus.Attach(rtc.Address, h.clock)
	clock := rtc.New(clockBus)

	w := water.NewController(clock, h.servo, append([]water.Option{water.WithSleep(noSleep)}, wopts...)...)
	ctrl, err := New(s, Hardware{
		ADC:        h.adc,
		LEDs:       h.leds,
		Segments:   h.segs,
		DisplayBus: h.displayBus,
		Clock:      clock,
	}, w, opts...)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

// feed delivers one window worth of conversions in channel order.
func (h *harness) feed(ambient, plant, uv []uint16) {
	for i := range ambient {
		h.ctrl.Handle(Conversion{Value: ambient[i]})
		h.ctrl.Handle(Conversion{Value: plant[i]})
		h.ctrl.Handle(Conversion{Value: uv[i]})
	}
}

// flush dispatches queued events and bus ready events until idle.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if h.ctrl.tx.Pending() {
			h.ctrl.Handle(BusReady{})
			continue
		}
		select {
		case ev := <-h.ctrl.events:
			h.ctrl.Handle(ev)
		default:
			return
		}
	}
	t.Fatal("controller did not settle")
}

func TestController_ChannelOrder(t *testing.T) {
	h := newHarness(t, rtc.Time{}, DefaultSettings(), nil)

	for i := 0; i < 7; i++ {
		h.ctrl.Handle(Tick{})
		h.ctrl.Handle(<-h.ctrl.events)
	}

	assert.Equal(t, []sample.Channel{
		sample.Ambient, sample.Plant, sample.UV,
		sample.Ambient, sample.Plant, sample.UV,
		sample.Ambient,
	}, h.adc.started())
}

func TestController_EndToEnd(t *testing.T) {
	ambient := []uint16{1000, 1010, 1020}
	uv := []uint16{620, 620, 620}

	tests := []struct {
		name    string
		plant   []uint16
		last    uint32
		watered bool
		plantT  sample.Temperature
	}{
		{"cooldown elapsed", []uint16{1005, 1015, 1025}, 0, true, sample.Temperature{Int: 11, Dec: 0}},
		{"one second short", []uint16{1005, 1015, 1025}, 1, false, sample.Temperature{Int: 11, Dec: 0}},
		{"delta two", []uint16{1200, 1200, 1200}, 0, true, sample.Temperature{Int: 9, Dec: 5}},
		{"delta three", []uint16{1300, 1300, 1300}, 0, false, sample.Temperature{Int: 8, Dec: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 00:10 is 600 s into the day.
			start := rtc.Time{Hours: 0, Minutes: 10}
			h := newHarness(t, start, DefaultSettings(),
				[]water.Option{water.WithState(water.State{LastMove: tt.last, Cooldown: 600})})

			h.feed(ambient, tt.plant, uv)
			require.Len(t, h.ctrl.cycles, 1)

			r := <-h.ctrl.cycles
			assert.Equal(t, sample.Temperature{Int: 11, Dec: 0}, r.Ambient)
			assert.Equal(t, tt.plantT, r.Plant)
			assert.Equal(t, uint8(4), r.UV)

			h.ctrl.process(context.Background(), r)
			h.flush(t)

			packets := h.rec.Packets()
			require.Len(t, packets, 1)
			assert.Equal(t, telemetry.Packet{0, 10, 11, 0, tt.plantT.Int, tt.plantT.Dec, 0}, packets[0])

			st := h.ctrl.Status()
			assert.Equal(t, uint64(1), st.Cycles)
			assert.Equal(t, uint64(1), st.PacketsSent)
			assert.Equal(t, packets[0], st.LastPacket)
			assert.Equal(t, uint8(4), st.DisplayLevel)

			if tt.watered {
				assert.Equal(t, uint8(1), st.Water.TimesWatered)
				assert.Equal(t, uint32(600), st.Water.LastMove)
				assert.Equal(t, []water.Pulse{
					water.PulseNeutral,
					water.PulseOpen, water.PulseNeutral, water.PulseClose, water.PulseNeutral,
				}, h.servo.pulses)
			} else {
				assert.Equal(t, uint8(0), st.Water.TimesWatered)
				assert.Equal(t, []water.Pulse{water.PulseNeutral}, h.servo.pulses)
			}
		})
	}
}

func TestController_DisplayFollowsUV(t *testing.T) {
	s := DefaultSettings()
	s.WindowSize = 1
	h := newHarness(t, rtc.Time{}, s, nil)

	h.feed([]uint16{1010}, []uint16{1010}, []uint16{620})  // level 4
	h.feed([]uint16{1010}, []uint16{1010}, []uint16{620})  // unchanged
	h.feed([]uint16{1010}, []uint16{1010}, []uint16{4095}) // level 33, overflow

	assert.Equal(t, []display.Pattern{
		display.PatternFor(0),
		display.PatternFor(4),
		display.PatternFor(11),
	}, h.segs.out)
}

func TestController_CycleSlotKeepsLatestWindow(t *testing.T) {
	s := DefaultSettings()
	s.WindowSize = 1

	var dropped atomic.Int32
	obs := &countingObserver{dropped: &dropped}
	h := newHarness(t, rtc.Time{Hours: 8, Minutes: 30}, s, nil, WithObserver(obs))

	h.feed([]uint16{1000}, []uint16{1000}, []uint16{0})
	h.feed([]uint16{2000}, []uint16{1300}, []uint16{0})
	require.Len(t, h.ctrl.cycles, 1)

	h.ctrl.process(context.Background(), <-h.ctrl.cycles)
	h.flush(t)

	// The first window reads 11.1 and 11.1.
	packets := h.rec.Packets()
	require.Len(t, packets, 1)
	assert.Equal(t, telemetry.Packet{8, 30, 2, 7, 8, 6, 0}, packets[0])

	st := h.ctrl.Status()
	assert.Equal(t, uint64(2), st.Cycles)
	assert.Equal(t, uint64(1), st.CyclesDropped)
	assert.Equal(t, int32(1), dropped.Load())
	assert.Empty(t, h.ctrl.cycles)
	assert.Equal(t, [sample.NumChannels][]uint16{{2000}, {1300}, {0}}, st.Raw)
}

type countingObserver struct {
	NopObserver
	dropped *atomic.Int32
}

func (o *countingObserver) CycleDropped() { o.dropped.Add(1) }

func TestController_PacketDroppedWhenBusBusy(t *testing.T) {
	h := newHarness(t, rtc.Time{}, DefaultSettings(), nil)
	h.displayBus.Attach(0x50, telemetry.NewRecorder(nil))
	h.displayBus.Start(0x50, i2c.Write)

	h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	h.flush(t)

	st := h.ctrl.Status()
	assert.Equal(t, uint64(1), st.PacketsDropped)
	assert.Zero(t, st.PacketsSent)
	assert.Empty(t, h.rec.Packets())
}

func TestController_DisplayNack(t *testing.T) {
	h := newHarness(t, rtc.Time{}, DefaultSettings(), nil)
	// A bus without the display attached NACKs the address.
	h.ctrl.tx = telemetry.NewTransmitter(i2c.NewSim(), telemetry.DisplayAddress, 0)

	h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	h.flush(t)

	st := h.ctrl.Status()
	assert.Equal(t, uint64(1), st.Faults)
	assert.Contains(t, st.LastError, StageTelemetry)
	assert.Zero(t, st.PacketsSent)
}

func TestController_StalledDisplayBusFaults(t *testing.T) {
	s := DefaultSettings()
	s.BusRetries = 4
	faults := &faultObserver{}
	h := newHarness(t, rtc.Time{}, s, nil, WithObserver(faults))

	h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	h.ctrl.Handle(BusReady{})
	h.ctrl.Handle(BusReady{})
	h.displayBus.Stall(true)
	require.False(t, h.ctrl.tx.Pending())

	for i := 0; i < 3; i++ {
		h.ctrl.onBusWait()
		require.True(t, h.ctrl.tx.Active())
	}
	h.ctrl.onBusWait()

	assert.False(t, h.ctrl.tx.Active())
	require.Len(t, faults.errs, 1)
	assert.Equal(t, StageTelemetry, faults.stages[0])
	assert.ErrorIs(t, faults.errs[0], i2c.ErrTimeout)
	st := h.ctrl.Status()
	assert.Equal(t, uint64(1), st.Faults)
	assert.Zero(t, st.PacketsSent)
	assert.Empty(t, h.rec.Packets())

	h.displayBus.Stall(false)
	next := telemetry.Packet{7, 6, 5, 4, 3, 2, 1}
	h.ctrl.Handle(Transmit{Packet: next})
	h.flush(t)
	assert.Equal(t, []telemetry.Packet{next}, h.rec.Packets())
	assert.Equal(t, uint64(1), h.ctrl.Status().PacketsSent)
}

func TestController_IdleStalledBusFaultsOncePerStreak(t *testing.T) {
	faults := &faultObserver{}
	h := newHarness(t, rtc.Time{}, DefaultSettings(), nil, WithObserver(faults))
	h.displayBus.Stall(true)

	for i := 0; i < busyStreakFault+2; i++ {
		h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	}

	st := h.ctrl.Status()
	assert.Equal(t, uint64(busyStreakFault+2), st.PacketsDropped)
	require.Len(t, faults.errs, 1)
	assert.Equal(t, StageTelemetry, faults.stages[0])
	assert.ErrorIs(t, faults.errs[0], i2c.ErrTimeout)

	h.displayBus.Stall(false)
	h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	h.flush(t)
	assert.Equal(t, uint64(1), h.ctrl.Status().PacketsSent)

	h.displayBus.Stall(true)
	for i := 0; i < busyStreakFault; i++ {
		h.ctrl.Handle(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}})
	}
	assert.Len(t, faults.errs, 2, "a new streak faults again")
}

// silentBus takes a start but never raises a ready flag.
type silentBus struct {
	mu     sync.Mutex
	status i2c.Status
	stops  int
}

func (b *silentBus) Status() i2c.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *silentBus) Start(uint8, i2c.Direction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = i2c.StatusBusy | i2c.StatusStart
}

func (b *silentBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = 0
	b.stops++
}

func (b *silentBus) Send(byte) {}

func (b *silentBus) Recv() byte { return 0xff }

func (b *silentBus) stopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stops
}

func TestController_RunAbandonsSilentDisplay(t *testing.T) {
	s := DefaultSettings()
	s.TickPeriod = time.Hour
	s.HeartbeatPeriod = time.Hour
	s.BusRetries = 5

	bus := &silentBus{}
	w := water.NewController(nil, &servoLog{}, water.WithSleep(noSleep))
	ctrl, err := New(s, Hardware{
		ADC:        &scriptADC{},
		LEDs:       &ledCounter{},
		Segments:   &segLog{},
		DisplayBus: bus,
		Clock:      rtc.New(i2c.NewSim()),
	}, w)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	require.True(t, ctrl.Post(Transmit{Packet: telemetry.Packet{1, 2, 3, 4, 5, 6, 7}}))
	require.Eventually(t, func() bool {
		return ctrl.Status().Faults == 1
	}, 5*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	st := ctrl.Status()
	assert.Contains(t, st.LastError, StageTelemetry)
	assert.Contains(t, st.LastError, i2c.ErrTimeout.Error())
	assert.False(t, ctrl.tx.Active())
	assert.Equal(t, 1, bus.stopCount())
}

func TestController_ClockFaultSkipsCycle(t *testing.T) {
	w := water.NewController(nil, &servoLog{}, water.WithSleep(noSleep))
	faults := &faultObserver{}
	ctrl, err := New(DefaultSettings(), Hardware{
		ADC:        &scriptADC{},
		LEDs:       &ledCounter{},
		Segments:   &segLog{},
		DisplayBus: i2c.NewSim(),
		Clock:      rtc.New(i2c.NewSim()), // nothing answers
	}, w, WithObserver(faults))
	require.NoError(t, err)

	ctrl.process(context.Background(), sample.Readings{})

	assert.Empty(t, ctrl.events, "no packet without a time stamp")
	require.Len(t, faults.errs, 1)
	assert.Equal(t, StageClock, faults.stages[0])
	assert.ErrorIs(t, faults.errs[0], i2c.ErrNack)
	assert.Equal(t, uint64(1), ctrl.Status().Faults)
}

type faultObserver struct {
	NopObserver
	stages []string
	errs   []error
}

func (o *faultObserver) Fault(stage string, err error) {
	o.stages = append(o.stages, stage)
	o.errs = append(o.errs, err)
}

func TestNew_RejectsWindowSize(t *testing.T) {
	s := DefaultSettings()
	s.WindowSize = 11
	_, err := New(s, Hardware{}, nil)
	assert.Error(t, err)
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &faultObserver{}, &faultObserver{}
	boom := errors.New("boom")
	Observers{a, b}.Fault(StageWatering, boom)

	assert.Equal(t, []error{boom}, a.errs)
	assert.Equal(t, []error{boom}, b.errs)
}

func TestController_RunGracefulShutdown(t *testing.T) {
	s := DefaultSettings()
	s.TickPeriod = time.Millisecond
	s.HeartbeatPeriod = time.Millisecond
	s.WindowSize = 1

	h := newHarness(t, rtc.Time{Hours: 23, Minutes: 59}, s, nil, WithBootTime(rtc.Time{Hours: 9}))
	h.adc.async = true
	h.adc.values = [sample.NumChannels]uint16{1010, 1015, 620}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.ctrl.Status().Water.TimesWatered >= 1 && len(h.rec.Packets()) >= 2
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	packets := h.rec.Packets()
	assert.Equal(t, rtc.Time{Hours: 9}, packets[0].Time())
	assert.Equal(t, uint8(0), packets[0].TimesWatered())
	assert.Positive(t, h.leds.n.Load())
}
