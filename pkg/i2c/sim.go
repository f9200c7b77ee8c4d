package i2c

import "sync"

// Sim is an in-memory bus controller with attached targets. Transfers
// complete instantly unless the bus is stalled.
type Sim struct {
	mu      sync.Mutex
	targets map[uint8]Target
	active  Target
	dir     Direction
	status  Status
	stalled bool
	stopped bool // Stop requested while stalled
}

var _ Controller = (*Sim)(nil)

// NewSim creates a simulated bus without targets.
func NewSim() *Sim {
	return &Sim{targets: make(map[uint8]Target)}
}

// Attach connects a target at addr, replacing any previous one.
func (s *Sim) Attach(addr uint8, t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[addr] = t
}

// Stall freezes the bus: pending conditions never complete and no
// ready flag is raised until Stall(false).
func (s *Sim) Stall(stalled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = stalled
	if !stalled && s.stopped {
		s.status = 0
		s.stopped = false
	}
}

func (s *Sim) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stalled {
		switch {
		case s.stopped:
			return StatusBusy | StatusStop
		case s.status.Has(StatusBusy):
			return StatusBusy | StatusStart
		}
		return StatusBusy
	}
	return s.status
}

func (s *Sim) Start(addr uint8, dir Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusBusy
	s.stopped = false
	s.dir = dir
	t, ok := s.targets[addr]
	if !ok || !t.Begin(dir) {
		if s.active != nil {
			s.active.End()
		}
		s.active = nil
		s.status |= StatusNack
		return
	}
	s.active = t
	if dir == Write {
		s.status |= StatusTxReady
	} else {
		s.status |= StatusRxReady
	}
}

func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.End()
		s.active = nil
	}
	if s.stalled {
		s.stopped = true
		return
	}
	s.status = 0
}

func (s *Sim) Send(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.dir != Write || s.stalled {
		return
	}
	s.active.Write(b)
}

func (s *Sim) Recv() byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.dir != Read || s.stalled {
		return 0xff
	}
	return s.active.Read()
}
