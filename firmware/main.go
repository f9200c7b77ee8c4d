//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"context"
	"machine"
	"time"

	"tinygo.org/x/drivers/servo"

	"github.com/itohio/plantcare/pkg/display"
	"github.com/itohio/plantcare/pkg/i2c"
	"github.com/itohio/plantcare/pkg/plant"
	"github.com/itohio/plantcare/pkg/rtc"
	"github.com/itohio/plantcare/pkg/sample"
	"github.com/itohio/plantcare/pkg/water"
)

var bootTime = rtc.Time{Hours: 9, Minutes: 0}

// adcs reads the analog inputs synchronously.
type adcs [sample.NumChannels]machine.ADC

func (a *adcs) Start(ch sample.Channel, done func(raw uint16)) {
	// Get returns a left aligned 16 bit value.
	done(a[ch].Get() >> (16 - ADC_RESOLUTION))
}

type leds [2]machine.Pin

func (l leds) Toggle() {
	for _, p := range l {
		p.Set(!p.Get())
	}
}

type segments struct {
	primary   [5]machine.Pin // A..E
	secondary [2]machine.Pin // F, G
}

func (s segments) WriteSegments(p display.Pattern) {
	for i, pin := range s.primary {
		pin.Set(p.Primary&(1<<i) != 0)
	}
	s.secondary[0].Set(p.Secondary&display.SegF != 0)
	s.secondary[1].Set(p.Secondary&display.SegG != 0)
}

type servos [2]servo.Servo

func (s servos) Set(p water.Pulse) {
	s[0].SetMicroseconds(int16(p.Left))
	s[1].SetMicroseconds(int16(p.Right))
}

func main() {
	machine.InitADC()
	var a adcs
	for i, pin := range []machine.Pin{PIN_AMBIENT, PIN_PLANT, PIN_UV} {
		a[i] = machine.ADC{Pin: pin}
		a[i].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}

	l := leds{PIN_LED1, PIN_LED2}
	for _, p := range l {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}

	seg := segments{
		primary:   [5]machine.Pin{PIN_SEG_A, PIN_SEG_B, PIN_SEG_C, PIN_SEG_D, PIN_SEG_E},
		secondary: [2]machine.Pin{PIN_SEG_F, PIN_SEG_G},
	}
	for _, p := range append(seg.primary[:], seg.secondary[:]...) {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}

	must(machine.I2C0.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_CLOCK_SDA,
		SCL:       PIN_CLOCK_SCL,
	}))
	must(machine.I2C1.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_DISPLAY_SDA,
		SCL:       PIN_DISPLAY_SCL,
	}))

	left, err := servo.New(machine.PWM7, PIN_SERVO_LEFT)
	must(err)
	right, err := servo.New(machine.PWM7, PIN_SERVO_RIGHT)
	must(err)

	clock := rtc.New(i2c.NewTxController(machine.I2C0))
	w := water.NewController(clock, servos{left, right})

	ctrl, err := plant.New(plant.DefaultSettings(), plant.Hardware{
		ADC:        &a,
		LEDs:       l,
		Segments:   seg,
		DisplayBus: i2c.NewTxController(machine.I2C1),
		Clock:      clock,
	}, w, plant.WithBootTime(bootTime))
	must(err)

	ctrl.Run(context.Background())
}

func must(err error) {
	if err == nil {
		return
	}
	for {
		println("init failed:", err.Error())
		time.Sleep(time.Second)
	}
}
