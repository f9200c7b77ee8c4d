package telemetry

import (
	"sync"

	"github.com/itohio/plantcare/pkg/i2c"
)

// Recorder is a bus target standing in for the display unit. It captures
// every complete packet it receives; partial transfers are discarded.
type Recorder struct {
	mu      sync.Mutex
	buf     []byte
	packets []Packet
	notify  func(Packet)
}

var _ i2c.Target = (*Recorder)(nil)

// NewRecorder creates a recorder. notify, if not nil, is called for every
// complete packet.
func NewRecorder(notify func(Packet)) *Recorder {
	return &Recorder{notify: notify}
}

// Packets returns the packets received so far.
func (r *Recorder) Packets() []Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Packet, len(r.packets))
	copy(result, r.packets)
	return result
}

func (r *Recorder) Begin(dir i2c.Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = r.buf[:0]
	return dir == i2c.Write
}

func (r *Recorder) Write(b byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, b)
}

func (r *Recorder) Read() byte { return 0xff }

func (r *Recorder) End() {
	r.mu.Lock()
	if len(r.buf) != Size {
		r.buf = r.buf[:0]
		r.mu.Unlock()
		return
	}
	var p Packet
	copy(p[:], r.buf)
	r.buf = r.buf[:0]
	r.packets = append(r.packets, p)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(p)
	}
}
