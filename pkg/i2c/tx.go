package i2c

import "sync"

// Txer performs a complete bus transaction: write w, then read len(r)
// bytes after a repeated start. Both tinygo's machine.I2C and Bridge
// implement it.
type Txer interface {
	Tx(addr uint16, w, r []byte) error
}

// TxController adapts a transaction level bus to the Controller interface.
//
// Written bytes are buffered and flushed either as the write phase of the
// first read after a repeated start or on stop. Each Recv after the first
// is a read-only transaction, which continues at the target's
// auto-incremented register pointer.
type TxController struct {
	mu     sync.Mutex
	bus    Txer
	addr   uint8
	dir    Direction
	active bool
	nack   bool
	wbuf   []byte
}

var _ Controller = (*TxController)(nil)

// NewTxController wraps bus.
func NewTxController(bus Txer) *TxController {
	return &TxController{bus: bus}
}

func (c *TxController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Status
	if c.nack {
		s |= StatusNack
	}
	if !c.active {
		return s
	}
	s |= StatusBusy
	if c.dir == Write {
		s |= StatusTxReady
	} else {
		s |= StatusRxReady
	}
	return s
}

func (c *TxController) Start(addr uint8, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		c.nack = false
	}
	if c.active && addr != c.addr {
		c.flush()
	}
	c.addr = addr
	c.dir = dir
	c.active = true
}

func (c *TxController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flush()
	c.active = false
}

func (c *TxController) Send(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.dir != Write {
		return
	}
	c.wbuf = append(c.wbuf, b)
}

func (c *TxController) Recv() byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.dir != Read {
		return 0xff
	}
	r := []byte{0xff}
	if err := c.bus.Tx(uint16(c.addr), c.wbuf, r); err != nil {
		c.nack = true
	}
	c.wbuf = c.wbuf[:0]
	return r[0]
}

// flush writes any buffered bytes; must be called with mu held.
func (c *TxController) flush() {
	if len(c.wbuf) == 0 {
		return
	}
	if err := c.bus.Tx(uint16(c.addr), c.wbuf, nil); err != nil {
		c.nack = true
	}
	c.wbuf = c.wbuf[:0]
}
