package world

import (
	"fmt"
	"time"

	"github.com/pthm-cable/substrate/clock"
	"github.com/pthm-cable/substrate/field"
)

// Key addresses a chunk in chunk space.
type Key struct {
	CX, CY int
}

func (k Key) String() string { return fmt.Sprintf("(%d,%d)", k.CX, k.CY) }

// chebyshev returns the Chebyshev distance between two keys.
func chebyshev(a, b Key) int {
	dx := a.CX - b.CX
	if dx < 0 {
		dx = -dx
	}
	dy := a.CY - b.CY
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// Chunk is a Side*Side tile holding one field per quantity.
type Chunk struct {
	CX, CY int

	fields     [NumQuantities]*field.Field
	state      State
	lastActive time.Time
	clock      clock.Clock
}

// NewChunk creates a dormant chunk with one zeroed field per quantity.
func NewChunk(cx, cy, side int, cfgs [NumQuantities]field.Config, clk clock.Clock) (*Chunk, error) {
	c := &Chunk{CX: cx, CY: cy, clock: clk, lastActive: clk.Now()}
	for _, q := range Quantities {
		f, err := field.New(side, side, cfgs[q])
		if err != nil {
			return nil, fmt.Errorf("chunk %d,%d %s: %w", cx, cy, q, err)
		}
		c.fields[q] = f
	}
	return c, nil
}

// Key returns the chunk's coordinates.
func (c *Chunk) Key() Key { return Key{c.CX, c.CY} }

// State returns the lifecycle state.
func (c *Chunk) State() State { return c.state }

// Field returns the field for q, or nil for an unknown quantity.
func (c *Chunk) Field(q Quantity) *field.Field {
	if !q.Valid() {
		return nil
	}
	return c.fields[q]
}

// LastActive returns when the chunk was last touched.
func (c *Chunk) LastActive() time.Time { return c.lastActive }

// IdleFor returns the time since the chunk was last touched.
func (c *Chunk) IdleFor() time.Duration { return c.clock.Now().Sub(c.lastActive) }

func (c *Chunk) touch() { c.lastActive = c.clock.Now() }

// Activate moves a dormant chunk to active. Active and hyper chunks keep
// their state; every call refreshes the idle timer.
func (c *Chunk) Activate() {
	if c.state == Dormant {
		c.state = Active
	}
	c.touch()
}

// SetHyper promotes the chunk to full fidelity from any state.
func (c *Chunk) SetHyper() {
	c.state = Hyper
	c.touch()
}

// Demote drops a hyper chunk to active without refreshing the idle timer.
func (c *Chunk) Demote() {
	if c.state == Hyper {
		c.state = Active
	}
}

// Sleep moves the chunk to dormant when it has been idle longer than timeout.
// It reports whether the state changed.
func (c *Chunk) Sleep(timeout time.Duration) bool {
	if c.state == Dormant || c.IdleFor() <= timeout {
		return false
	}
	c.state = Dormant
	return true
}

// GetValue reads q at local (x, y).
func (c *Chunk) GetValue(q Quantity, x, y int) float64 {
	f := c.Field(q)
	if f == nil {
		return 0
	}
	c.touch()
	return f.Get(x, y)
}

// SetValue writes q at local (x, y).
func (c *Chunk) SetValue(q Quantity, x, y int, v float64) {
	f := c.Field(q)
	if f == nil {
		return
	}
	c.touch()
	f.Set(x, y, v)
}

// AddValue adds delta to q at local (x, y).
func (c *Chunk) AddValue(q Quantity, x, y int, delta float64) {
	f := c.Field(q)
	if f == nil {
		return
	}
	c.touch()
	f.Add(x, y, delta)
}

// DiffuseDecayStep advances every field unless the chunk is dormant.
func (c *Chunk) DiffuseDecayStep() {
	if c.state == Dormant {
		return
	}
	for _, f := range c.fields {
		f.DiffuseDecayStep()
	}
}

// GrowthStep runs logistic growth on hyper chunks only.
func (c *Chunk) GrowthStep() {
	if c.state != Hyper {
		return
	}
	for _, f := range c.fields {
		f.GrowthStep()
	}
}

// Snapshot is a detached copy of a chunk's field contents.
type Snapshot struct {
	Key    Key
	Side   int
	Fields [NumQuantities][]float64
}

// Snapshot copies the chunk's fields.
func (c *Chunk) Snapshot() Snapshot {
	s := Snapshot{Key: c.Key(), Side: c.fields[0].W}
	for _, q := range Quantities {
		s.Fields[q] = c.fields[q].CopyBuffer(nil)
	}
	return s
}

// Restore loads field contents from a snapshot of the same size.
func (c *Chunk) Restore(s Snapshot) error {
	for _, q := range Quantities {
		if s.Fields[q] == nil {
			continue
		}
		if err := c.fields[q].Load(s.Fields[q]); err != nil {
			return fmt.Errorf("restore %s: %w", q, err)
		}
	}
	return nil
}
