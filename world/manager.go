// Package world owns the chunked simulation space: fixed-size chunks holding
// one field per quantity, and a manager that keeps a focus-driven working set
// of them simulated while the rest sleep.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/pthm-cable/substrate/clock"
	"github.com/pthm-cable/substrate/field"
)

var (
	// ErrInvalidConfig is returned for unusable manager settings.
	ErrInvalidConfig = errors.New("world: invalid config")
	// ErrUnknownChunk is returned when an operation names a chunk that does not exist.
	ErrUnknownChunk = errors.New("world: unknown chunk")
	// ErrChunkInFocus rejects sleeping a chunk inside the activation radius.
	ErrChunkInFocus = errors.New("world: chunk within activation radius")
	// ErrChunkNotIdle rejects sleeping a chunk before its idle timeout.
	ErrChunkNotIdle = errors.New("world: chunk not idle long enough")
)

// DefaultChunkSide is the side length of a chunk in cells.
const DefaultChunkSide = 64

// Config controls chunk size, focus radii and reclamation.
type Config struct {
	ChunkSide int

	// ActivationRadius is the Chebyshev distance (in chunks, inclusive)
	// kept active around the focus.
	ActivationRadius int
	// HyperRadius counts chunks strictly closer than this distance as hyper,
	// so 1 means the focus chunk alone.
	HyperRadius int

	// SleepTimeout is the idle time after which an out-of-focus chunk may sleep.
	SleepTimeout time.Duration
	// EvictAfter is the idle time after which a dormant chunk of an unbounded
	// world is written to the store and dropped. Zero disables eviction.
	EvictAfter time.Duration

	// Width and Height bound the world in chunks. When both are positive the
	// grid is built eagerly and coordinates outside it are ignored; otherwise
	// the world is unbounded and chunks are created on first write or focus.
	Width, Height int
}

// DefaultConfig returns an unbounded world with 64-cell chunks.
func DefaultConfig() Config {
	return Config{
		ChunkSide:        DefaultChunkSide,
		ActivationRadius: 3,
		HyperRadius:      1,
		SleepTimeout:     30 * time.Second,
	}
}

// Validate checks radii and dimensions.
func (c Config) Validate() error {
	switch {
	case c.ChunkSide <= 0:
		return fmt.Errorf("%w: chunk side %d", ErrInvalidConfig, c.ChunkSide)
	case c.ActivationRadius < 0 || c.HyperRadius < 0:
		return fmt.Errorf("%w: negative radius", ErrInvalidConfig)
	case c.HyperRadius > c.ActivationRadius:
		return fmt.Errorf("%w: hyper radius %d exceeds activation radius %d", ErrInvalidConfig, c.HyperRadius, c.ActivationRadius)
	case c.SleepTimeout < 0 || c.EvictAfter < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	case c.Width < 0 || c.Height < 0:
		return fmt.Errorf("%w: negative world size", ErrInvalidConfig)
	}
	return nil
}

// Bounded reports whether the world has a fixed chunk grid.
func (c Config) Bounded() bool { return c.Width > 0 && c.Height > 0 }

// Generator fills a freshly created field. originX/originY is the world cell
// of the field's local (0,0).
type Generator interface {
	Generate(f *field.Field, originX, originY int)
}

// Manager owns every chunk and the active/hyper working sets.
type Manager struct {
	cfg       Config
	fieldCfgs [NumQuantities]field.Config
	clock     clock.Clock

	chunks map[Key]*Chunk
	active map[Key]struct{}
	hyper  map[Key]struct{}

	focus   Key
	focused bool

	gens  [NumQuantities]Generator
	store Store

	evicted  int
	restored int
}

// NewManager validates the configuration and, for bounded worlds, builds
// the full chunk grid in the dormant state.
func NewManager(cfg Config, fields [NumQuantities]field.Config, clk clock.Clock) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, q := range Quantities {
		if err := fields[q].Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", q, err)
		}
	}
	if clk == nil {
		clk = clock.System{}
	}

	m := &Manager{
		cfg:       cfg,
		fieldCfgs: fields,
		clock:     clk,
		chunks:    make(map[Key]*Chunk),
		active:    make(map[Key]struct{}),
		hyper:     make(map[Key]struct{}),
	}

	if cfg.Bounded() {
		for cy := 0; cy < cfg.Height; cy++ {
			for cx := 0; cx < cfg.Width; cx++ {
				if m.getOrCreate(Key{cx, cy}) == nil {
					return nil, fmt.Errorf("building chunk %d,%d", cx, cy)
				}
			}
		}
	}
	return m, nil
}

// Config returns the manager settings.
func (m *Manager) Config() Config { return m.cfg }

// SetStore attaches a backing store for evicted chunks.
func (m *Manager) SetStore(s Store) { m.store = s }

// Focus returns the focus chunk and whether a focus has been set.
func (m *Manager) Focus() (Key, bool) { return m.focus, m.focused }

// ChunkKey returns the chunk containing world cell (wx, wy).
func (m *Manager) ChunkKey(wx, wy int) Key {
	s := m.cfg.ChunkSide
	return Key{floorDiv(wx, s), floorDiv(wy, s)}
}

// locate splits a world cell into its chunk key and local coordinates.
func (m *Manager) locate(wx, wy int) (Key, int, int) {
	s := m.cfg.ChunkSide
	return m.ChunkKey(wx, wy), ((wx % s) + s) % s, ((wy % s) + s) % s
}

func (m *Manager) inBounds(k Key) bool {
	if !m.cfg.Bounded() {
		return true
	}
	return k.CX >= 0 && k.CX < m.cfg.Width && k.CY >= 0 && k.CY < m.cfg.Height
}

// inFocus reports whether k lies within the activation radius of the focus.
func (m *Manager) inFocus(k Key) bool {
	return m.focused && chebyshev(k, m.focus) <= m.cfg.ActivationRadius
}

// Chunk returns the chunk at (cx, cy), or nil if it does not exist.
func (m *Manager) Chunk(cx, cy int) *Chunk { return m.chunks[Key{cx, cy}] }

// StateOf returns the state of the chunk at k. Missing chunks are dormant.
func (m *Manager) StateOf(k Key) State {
	if c := m.chunks[k]; c != nil {
		return c.State()
	}
	return Dormant
}

// getOrCreate returns the chunk at k, creating it (seeded, or restored from
// the store) when the world allows it.
func (m *Manager) getOrCreate(k Key) *Chunk {
	if c := m.chunks[k]; c != nil {
		return c
	}
	if !m.inBounds(k) {
		return nil
	}

	side := m.cfg.ChunkSide
	c, err := NewChunk(k.CX, k.CY, side, m.fieldCfgs, m.clock)
	if err != nil {
		slog.Error("chunk creation failed", "chunk", k.String(), "error", err)
		return nil
	}
	for _, q := range Quantities {
		if g := m.gens[q]; g != nil {
			g.Generate(c.fields[q], k.CX*side, k.CY*side)
		}
	}
	if m.store != nil {
		snap, ok, err := m.store.Load(k)
		switch {
		case err != nil:
			slog.Warn("chunk restore failed", "chunk", k.String(), "error", err)
		case ok:
			if err := c.Restore(snap); err != nil {
				slog.Warn("chunk restore failed", "chunk", k.String(), "error", err)
			} else {
				m.restored++
			}
		}
	}
	m.chunks[k] = c
	return c
}

// wake activates a dormant chunk and adds it to the active set.
func (m *Manager) wake(k Key, c *Chunk) {
	if c.State() == Dormant {
		c.Activate()
		slog.Debug("chunk woken", "chunk", k.String())
	}
	m.active[k] = struct{}{}
}

// SetFocus moves the attention point to world cell (wx, wy). Chunks within
// the activation radius become active, those strictly inside the hyper
// radius become hyper, and previously active chunks now out of range sleep
// once idle past the timeout. Out-of-range chunks that are not yet idle stay
// active until a later SetFocus or Reap.
func (m *Manager) SetFocus(wx, wy int) {
	fk := m.ChunkKey(wx, wy)
	m.focus, m.focused = fk, true

	ra := m.cfg.ActivationRadius
	nextActive := make(map[Key]struct{}, (2*ra+1)*(2*ra+1))
	nextHyper := make(map[Key]struct{})

	for cy := fk.CY - ra; cy <= fk.CY+ra; cy++ {
		for cx := fk.CX - ra; cx <= fk.CX+ra; cx++ {
			k := Key{cx, cy}
			c := m.getOrCreate(k)
			if c == nil {
				continue
			}
			if chebyshev(k, fk) < m.cfg.HyperRadius {
				c.SetHyper()
				nextHyper[k] = struct{}{}
			} else {
				c.Demote()
				c.Activate()
			}
			nextActive[k] = struct{}{}
		}
	}

	for k := range m.active {
		if _, ok := nextActive[k]; ok {
			continue
		}
		c := m.chunks[k]
		if c == nil {
			delete(m.active, k)
			continue
		}
		c.Demote()
		if c.Sleep(m.cfg.SleepTimeout) {
			delete(m.active, k)
			slog.Debug("chunk slept", "chunk", k.String())
		}
	}
	for k := range nextActive {
		m.active[k] = struct{}{}
	}
	m.hyper = nextHyper
}

// Sleep explicitly puts the chunk at (cx, cy) to sleep. It refuses chunks
// inside the activation radius and chunks that have not been idle long
// enough. Sleeping an already dormant chunk is a no-op.
func (m *Manager) Sleep(cx, cy int) error {
	k := Key{cx, cy}
	c := m.chunks[k]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownChunk, k)
	}
	if c.State() == Dormant {
		return nil
	}
	if m.inFocus(k) {
		return fmt.Errorf("%w: %s", ErrChunkInFocus, k)
	}
	if !c.Sleep(m.cfg.SleepTimeout) {
		return fmt.Errorf("%w: %s idle %s", ErrChunkNotIdle, k, c.IdleFor())
	}
	delete(m.active, k)
	delete(m.hyper, k)
	return nil
}

// Reap sleeps lingering out-of-focus chunks that have gone idle and, for
// unbounded worlds with a store, evicts dormant chunks idle past EvictAfter.
func (m *Manager) Reap() (slept, evicted int) {
	for k := range m.active {
		if m.inFocus(k) {
			continue
		}
		c := m.chunks[k]
		if c == nil {
			delete(m.active, k)
			delete(m.hyper, k)
			continue
		}
		c.Demote()
		delete(m.hyper, k)
		if c.Sleep(m.cfg.SleepTimeout) {
			delete(m.active, k)
			slept++
		}
	}

	if m.cfg.Bounded() || m.store == nil || m.cfg.EvictAfter <= 0 {
		return slept, 0
	}
	for k, c := range m.chunks {
		if c.State() != Dormant || c.IdleFor() <= m.cfg.EvictAfter {
			continue
		}
		if err := m.store.Save(c.Snapshot()); err != nil {
			slog.Warn("chunk eviction failed", "chunk", k.String(), "error", err)
			continue
		}
		delete(m.chunks, k)
		evicted++
		slog.Debug("chunk evicted", "chunk", k.String())
	}
	m.evicted += evicted
	return slept, evicted
}

// Flush writes every resident chunk to the store.
func (m *Manager) Flush() error {
	if m.store == nil {
		return nil
	}
	for _, c := range m.sorted(m.chunks) {
		if err := m.store.Save(c.Snapshot()); err != nil {
			return fmt.Errorf("flushing chunk %s: %w", c.Key(), err)
		}
	}
	return nil
}

// Step advances every active chunk: diffusion and decay for all of them,
// growth for hyper chunks. Chunks are independent; nothing crosses a
// chunk boundary.
func (m *Manager) Step() {
	for k := range m.active {
		c := m.chunks[k]
		c.DiffuseDecayStep()
		c.GrowthStep()
	}
}

// GetValue reads q at world cell (wx, wy). Missing and dormant chunks read 0
// and are not woken.
func (m *Manager) GetValue(q Quantity, wx, wy int) float64 {
	if !q.Valid() {
		return 0
	}
	k, lx, ly := m.locate(wx, wy)
	c := m.chunks[k]
	if c == nil || c.State() == Dormant {
		return 0
	}
	return c.GetValue(q, lx, ly)
}

// SetValue writes q at world cell (wx, wy), creating and waking the owning
// chunk as needed. Writes outside a bounded world are ignored.
func (m *Manager) SetValue(q Quantity, wx, wy int, v float64) {
	if !q.Valid() {
		return
	}
	k, lx, ly := m.locate(wx, wy)
	c := m.getOrCreate(k)
	if c == nil {
		return
	}
	m.wake(k, c)
	c.SetValue(q, lx, ly, v)
}

// AddValue adds delta to q at world cell (wx, wy), like SetValue.
func (m *Manager) AddValue(q Quantity, wx, wy int, delta float64) {
	if !q.Valid() {
		return
	}
	k, lx, ly := m.locate(wx, wy)
	c := m.getOrCreate(k)
	if c == nil {
		return
	}
	m.wake(k, c)
	c.AddValue(q, lx, ly, delta)
}

// InitWithOases seeds q from world-space oases. Each oasis is split across
// the chunks its radius overlaps and recentered into their local space;
// every touched chunk has its q field reinitialized and is woken.
func (m *Manager) InitWithOases(q Quantity, oases []field.Oasis) {
	if !q.Valid() {
		return
	}
	side := float64(m.cfg.ChunkSide)
	groups := make(map[Key][]field.Oasis)
	for _, o := range oases {
		cx0 := int(math.Floor((o.X - o.Radius) / side))
		cx1 := int(math.Floor((o.X + o.Radius) / side))
		cy0 := int(math.Floor((o.Y - o.Radius) / side))
		cy1 := int(math.Floor((o.Y + o.Radius) / side))
		for cy := cy0; cy <= cy1; cy++ {
			for cx := cx0; cx <= cx1; cx++ {
				k := Key{cx, cy}
				if !m.inBounds(k) {
					continue
				}
				groups[k] = append(groups[k], field.Oasis{
					X:      o.X - float64(cx)*side,
					Y:      o.Y - float64(cy)*side,
					Radius: o.Radius,
					Value:  o.Value,
				})
			}
		}
	}
	for k, local := range groups {
		c := m.getOrCreate(k)
		if c == nil {
			continue
		}
		m.wake(k, c)
		c.fields[q].InitWithOases(local)
	}
}

// SetGenerator installs a seeding generator for q, applies it to every
// resident chunk, and uses it for chunks created later.
func (m *Manager) SetGenerator(q Quantity, g Generator) {
	if !q.Valid() {
		return
	}
	m.gens[q] = g
	if g == nil {
		return
	}
	side := m.cfg.ChunkSide
	for k, c := range m.chunks {
		g.Generate(c.fields[q], k.CX*side, k.CY*side)
	}
}

// InitWithNoise seeds q with world-continuous noise.
func (m *Manager) InitWithNoise(q Quantity, n *field.Noise) {
	m.SetGenerator(q, n)
}

// ActiveChunks returns the active chunks ordered by row then column. The
// slice is freshly allocated; the chunks are owned by the manager.
func (m *Manager) ActiveChunks() []*Chunk {
	set := make(map[Key]*Chunk, len(m.active))
	for k := range m.active {
		set[k] = m.chunks[k]
	}
	return m.sorted(set)
}

func (m *Manager) sorted(set map[Key]*Chunk) []*Chunk {
	out := make([]*Chunk, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Chunk) int {
		if a.CY != b.CY {
			return a.CY - b.CY
		}
		return a.CX - b.CX
	})
	return out
}

// Stats counts chunks per lifecycle state.
type Stats struct {
	Chunks  int
	Dormant int
	Active  int // active but not hyper
	Hyper   int

	// Lingering chunks are in the active set but outside the focus radius.
	Lingering int

	Evicted  int
	Restored int
}

// Stats returns the current chunk counts.
func (m *Manager) Stats() Stats {
	s := Stats{Chunks: len(m.chunks), Evicted: m.evicted, Restored: m.restored}
	for _, c := range m.chunks {
		switch c.State() {
		case Dormant:
			s.Dormant++
		case Active:
			s.Active++
		case Hyper:
			s.Hyper++
		}
	}
	for k := range m.active {
		if !m.inFocus(k) {
			s.Lingering++
		}
	}
	return s
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("chunks", s.Chunks),
		slog.Int("dormant", s.Dormant),
		slog.Int("active", s.Active),
		slog.Int("hyper", s.Hyper),
		slog.Int("lingering", s.Lingering),
		slog.Int("evicted", s.Evicted),
		slog.Int("restored", s.Restored),
	)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
