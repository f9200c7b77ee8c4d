// Package display renders the UV level on a single 7-segment digit.
package display

import "sync"

// Segment bits. A to E sit on the primary port, F and G on the secondary.
const (
	SegA uint8 = 0x01
	SegB uint8 = 0x02
	SegC uint8 = 0x04
	SegD uint8 = 0x08
	SegE uint8 = 0x10

	SegF uint8 = 0x08
	SegG uint8 = 0x10

	PrimaryMask   = SegA | SegB | SegC | SegD | SegE
	SecondaryMask = SegF | SegG
)

// MaxLevel is the highest level with its own pattern.
const MaxLevel = 10

// Pattern is the pair of port values lighting one symbol.
type Pattern struct {
	Primary   uint8
	Secondary uint8
}

// patterns is indexed by level; the last entry is the overflow symbol.
var patterns = [MaxLevel + 2]Pattern{
	{SegA | SegB | SegC | SegD | SegE, SegF},        // 0
	{SegB | SegC, 0},                                // 1
	{SegA | SegB | SegD | SegE, SegG},               // 2
	{SegA | SegB | SegC | SegD, SegG},               // 3
	{SegB | SegC, SegF | SegG},                      // 4
	{SegA | SegC | SegD, SegF | SegG},               // 5
	{SegA | SegC | SegD | SegE, SegF | SegG},        // 6
	{SegA | SegB | SegC, 0},                         // 7
	{SegA | SegB | SegC | SegD | SegE, SegF | SegG}, // 8
	{SegA | SegB | SegC, SegF | SegG},               // 9
	{SegA | SegB | SegC | SegE, SegF | SegG},        // 10 (A)
	{SegC | SegD | SegE, SegF | SegG},               // overflow (b)
}

// PatternFor returns the pattern of level; levels above MaxLevel map to the
// overflow pattern.
func PatternFor(level uint8) Pattern {
	if level > MaxLevel {
		return patterns[len(patterns)-1]
	}
	return patterns[level]
}

// Writer sets the segment ports.
type Writer interface {
	WriteSegments(p Pattern)
}

// Driver writes a level to the segments only when it changes.
type Driver struct {
	mu       sync.Mutex
	out      Writer
	level    uint8
	rendered bool
}

// NewDriver creates a driver. Nothing is written until Reset or Update.
func NewDriver(out Writer) *Driver {
	return &Driver{out: out}
}

// Reset renders level 0 unconditionally.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.render(0)
}

// Update renders level if it differs from the last rendered one and
// reports whether the ports were written.
func (d *Driver) Update(level uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rendered && level == d.level {
		return false
	}
	d.render(level)
	return true
}

// Level returns the last rendered level.
func (d *Driver) Level() (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level, d.rendered
}

func (d *Driver) render(level uint8) {
	d.out.WriteSegments(PatternFor(level))
	d.level = level
	d.rendered = true
}
