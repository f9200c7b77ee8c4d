package i2c

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bridge's serial speed.
	DefaultBaudRate = 115200
	// DefaultBridgeTimeout bounds the wait for a bridge response.
	DefaultBridgeTimeout = 100 * time.Millisecond

	frameTx   = 'T'
	statusAck = 0x00
	maxFrame  = 255
)

// ErrBridge is returned for malformed bridge responses.
var ErrBridge = errors.New("i2c: bridge protocol error")

// Port lists a serial port.
type Port struct {
	Name        string
	Description string
}

// port is the part of serial.Port the bridge needs.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Bridge talks to a USB-serial I2C adapter.
//
// Request frame:  'T', addr, len(w), len(r), w...
// Response frame: status (0 = ack), then len(r) bytes on ack.
type Bridge struct {
	mu      sync.Mutex
	conn    port
	timeout time.Duration
}

var _ Txer = (*Bridge)(nil)

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// OpenBridge opens the serial port of a bridge adapter.
func OpenBridge(name string, baudRate int, timeout time.Duration) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	b, err := newBridge(p, timeout)
	if err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

func newBridge(p port, timeout time.Duration) (*Bridge, error) {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return &Bridge{conn: p, timeout: timeout}, nil
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}

// Tx performs one bus transaction through the adapter.
func (b *Bridge) Tx(addr uint16, w, r []byte) error {
	if len(w) > maxFrame || len(r) > maxFrame {
		return fmt.Errorf("%w: transfer too long (%d/%d)", ErrBridge, len(w), len(r))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.conn.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input: %w", err)
	}

	frame := make([]byte, 0, 4+len(w))
	frame = append(frame, frameTx, byte(addr), byte(len(w)), byte(len(r)))
	frame = append(frame, w...)
	if _, err := b.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	var status [1]byte
	if err := b.readFull(status[:]); err != nil {
		return err
	}
	if status[0] != statusAck {
		return fmt.Errorf("address 0x%02x: %w", addr, ErrNack)
	}
	return b.readFull(r)
}

// readFull reads len(buf) bytes. The serial port reports a read timeout as
// a zero length read, which is turned into ErrTimeout.
func (b *Bridge) readFull(buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := b.conn.Read(buf[n:])
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if m == 0 {
			return fmt.Errorf("bridge response after %v: %w", b.timeout, ErrTimeout)
		}
		n += m
	}
	return nil
}
