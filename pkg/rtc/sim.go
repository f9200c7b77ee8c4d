package rtc

import (
	"sync"
	"time"

	"github.com/itohio/plantcare/pkg/i2c"
)

const numRegisters = 0x13

// Sim simulates a DS3231 on an i2c.Sim bus. Its time advances with the
// host clock, scaled by the speed factor.
type Sim struct {
	mu    sync.Mutex
	regs  [numRegisters]byte
	ptr   int
	first bool // next write sets the register pointer

	base  time.Duration // time of day at the last set
	setAt time.Time
	speed float64
	now   func() time.Time
}

var _ i2c.Target = (*Sim)(nil)

// NewSim creates a simulated clock starting at t.
func NewSim(t Time, speed float64) *Sim {
	if speed <= 0 {
		speed = 1
	}
	s := &Sim{speed: speed, now: time.Now}
	s.set(time.Duration(t.SecondsOfDay()) * time.Second)
	return s
}

// SetNow replaces the host time source, for tests.
func (s *Sim) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.setAt = now()
}

// Time returns the current simulated time of day.
func (s *Sim) Time() Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := uint32(s.elapsed() / time.Second)
	return Time{Hours: uint8(sec / secondsPerHour), Minutes: uint8(sec % secondsPerHour / secondsPerMinute)}
}

func (s *Sim) Begin(dir i2c.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir == i2c.Write {
		s.first = true
	} else {
		s.latch()
	}
	return true
}

func (s *Sim) Write(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first {
		s.first = false
		s.ptr = int(b) % numRegisters
		s.latch()
		return
	}
	s.regs[s.ptr] = b
	s.ptr = (s.ptr + 1) % numRegisters
	if s.ptr == 3 {
		// Seconds, minutes and hours written: restart the time base.
		sec := time.Duration(Decode(s.regs[0])) * time.Second
		mins := time.Duration(Decode(s.regs[1])) * time.Minute
		hour := time.Duration(Decode(s.regs[2]&0x3f)) * time.Hour
		s.set(hour + mins + sec)
	}
}

func (s *Sim) Read() byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.regs[s.ptr]
	s.ptr = (s.ptr + 1) % numRegisters
	return b
}

func (s *Sim) End() {}

func (s *Sim) set(tod time.Duration) {
	s.base = tod
	s.setAt = s.now()
	s.latch()
}

func (s *Sim) elapsed() time.Duration {
	run := time.Duration(float64(s.now().Sub(s.setAt)) * s.speed)
	return (s.base + run) % (SecondsPerDay * time.Second)
}

// latch copies the running time into the time keeping registers.
func (s *Sim) latch() {
	sec := uint32(s.elapsed() / time.Second)
	s.regs[0] = Encode(uint8(sec % secondsPerMinute))
	s.regs[1] = Encode(uint8(sec % secondsPerHour / secondsPerMinute))
	s.regs[2] = Encode(uint8(sec / secondsPerHour))
}
