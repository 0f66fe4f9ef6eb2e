// Package field implements a bounded 2D scalar grid with diffusion, decay and
// logistic growth. Updates that read neighbors are double-buffered so every
// cell in a pass only sees pre-pass state.
package field

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidDimensions is returned when width or height is not positive.
	ErrInvalidDimensions = errors.New("field: invalid dimensions")
	// ErrInvalidConfig is returned when a rate or bound is out of range.
	ErrInvalidConfig = errors.New("field: invalid config")
)

// Config holds the dynamics of one field.
type Config struct {
	DiffusionRate float64 `yaml:"diffusion_rate"` // [0,1] blend toward neighbor mean per step
	DecayRate     float64 `yaml:"decay_rate"`     // [0,1] fraction lost per step
	MaxValue      float64 `yaml:"max_value"`      // upper clamp for every cell
	GrowthRate    float64 `yaml:"growth_rate"`    // logistic rate, 0 disables growth
	GrowthCap     float64 `yaml:"growth_cap"`     // logistic carrying capacity
}

// HasGrowth reports whether logistic growth is configured.
func (c Config) HasGrowth() bool { return c.GrowthRate > 0 }

// Validate checks the config for values that would break the update rules.
func (c Config) Validate() error {
	for _, v := range []float64{c.DiffusionRate, c.DecayRate, c.MaxValue, c.GrowthRate, c.GrowthCap} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %+v", ErrInvalidConfig, c)
		}
	}
	switch {
	case c.DiffusionRate < 0 || c.DiffusionRate > 1:
		return fmt.Errorf("%w: diffusion_rate %v outside [0,1]", ErrInvalidConfig, c.DiffusionRate)
	case c.DecayRate < 0 || c.DecayRate > 1:
		return fmt.Errorf("%w: decay_rate %v outside [0,1]", ErrInvalidConfig, c.DecayRate)
	case c.MaxValue <= 0:
		return fmt.Errorf("%w: max_value %v must be positive", ErrInvalidConfig, c.MaxValue)
	case c.GrowthRate < 0 || c.GrowthRate > 1:
		return fmt.Errorf("%w: growth_rate %v outside [0,1]", ErrInvalidConfig, c.GrowthRate)
	case c.GrowthRate > 0 && c.GrowthCap <= 0:
		return fmt.Errorf("%w: growth_cap %v must be positive when growth_rate is set", ErrInvalidConfig, c.GrowthCap)
	}
	return nil
}

// Field is a W*H grid of values in [0, MaxValue].
type Field struct {
	W, H int

	cfg Config

	// cur is the live buffer, next is scratch for neighbor passes.
	cur  []float64
	next []float64
}

// New creates a zeroed field.
func New(w, h int, cfg Config) (*Field, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Field{
		W:    w,
		H:    h,
		cfg:  cfg,
		cur:  make([]float64, w*h),
		next: make([]float64, w*h),
	}, nil
}

// Config returns the field's dynamics.
func (f *Field) Config() Config { return f.cfg }

// Len returns the number of cells.
func (f *Field) Len() int { return len(f.cur) }

func (f *Field) inBounds(x, y int) bool {
	return x >= 0 && x < f.W && y >= 0 && y < f.H
}

// clamp maps v into [0, MaxValue]. NaN becomes 0.
func (f *Field) clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > f.cfg.MaxValue {
		return f.cfg.MaxValue
	}
	return v
}

// Get returns the value at (x, y), or 0 outside the grid.
func (f *Field) Get(x, y int) float64 {
	if !f.inBounds(x, y) {
		return 0
	}
	return f.cur[y*f.W+x]
}

// Set writes a clamped value at (x, y). Out-of-range writes are ignored.
func (f *Field) Set(x, y int, v float64) {
	if !f.inBounds(x, y) {
		return
	}
	f.cur[y*f.W+x] = f.clamp(v)
}

// Add adds delta at (x, y), clamping the result. Out-of-range writes are ignored.
func (f *Field) Add(x, y int, delta float64) {
	if !f.inBounds(x, y) {
		return
	}
	i := y*f.W + x
	f.cur[i] = f.clamp(f.cur[i] + delta)
}

// Fill sets every cell to v (clamped).
func (f *Field) Fill(v float64) {
	v = f.clamp(v)
	for i := range f.cur {
		f.cur[i] = v
	}
}

// Clear zeroes the grid.
func (f *Field) Clear() {
	clear(f.cur)
}

// DiffuseStep runs one explicit diffusion pass with a zero-flux boundary.
// Each cell exchanges DiffusionRate/4 of the difference with every neighbor
// that exists, so interior cells move toward their 4-neighbor mean and mass
// is conserved.
func (f *Field) DiffuseStep() {
	f.diffuseInto(1)
	f.swap()
}

// DecayStep multiplies every cell by (1 - DecayRate).
func (f *Field) DecayStep() {
	if f.cfg.DecayRate == 0 {
		return
	}
	floats.Scale(1-f.cfg.DecayRate, f.cur)
}

// DiffuseDecayStep applies diffusion then decay in a single buffered pass.
func (f *Field) DiffuseDecayStep() {
	f.diffuseInto(1 - f.cfg.DecayRate)
	f.swap()
}

// GrowthStep applies logistic growth v += r*v*(1 - v/cap). No-op without a
// growth rate.
func (f *Field) GrowthStep() {
	if !f.cfg.HasGrowth() {
		return
	}
	r := f.cfg.GrowthRate
	k := f.cfg.GrowthCap
	for i, v := range f.cur {
		if v <= 0 {
			continue
		}
		f.cur[i] = f.clamp(v + r*v*(1-v/k))
	}
}

// diffuseInto writes the diffused grid, scaled by keep, into next.
func (f *Field) diffuseInto(keep float64) {
	w, h := f.W, f.H
	src, dst := f.cur, f.next
	a := f.cfg.DiffusionRate * 0.25

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			i := row + x
			c := src[i]
			var flux float64
			if x > 0 {
				flux += src[i-1] - c
			}
			if x < w-1 {
				flux += src[i+1] - c
			}
			if y > 0 {
				flux += src[i-w] - c
			}
			if y < h-1 {
				flux += src[i+w] - c
			}
			dst[i] = f.clamp((c + a*flux) * keep)
		}
	}
}

func (f *Field) swap() {
	f.cur, f.next = f.next, f.cur
}

// Sum returns the total of all cells.
func (f *Field) Sum() float64 { return floats.Sum(f.cur) }

// Average returns the mean cell value.
func (f *Field) Average() float64 { return floats.Sum(f.cur) / float64(len(f.cur)) }

// Max returns the largest cell value.
func (f *Field) Max() float64 { return floats.Max(f.cur) }

// Min returns the smallest cell value.
func (f *Field) Min() float64 { return floats.Min(f.cur) }

// Buffer returns the live row-major buffer. The slice is borrowed: the next
// diffusion pass swaps buffers, so callers must not retain it across steps.
// Use CopyBuffer to keep a stable copy.
func (f *Field) Buffer() []float64 { return f.cur }

// CopyBuffer copies the live buffer into dst, allocating when dst is too small.
func (f *Field) CopyBuffer(dst []float64) []float64 {
	if cap(dst) < len(f.cur) {
		dst = make([]float64, len(f.cur))
	}
	dst = dst[:len(f.cur)]
	copy(dst, f.cur)
	return dst
}

// Load replaces the grid contents with src, clamping each value.
func (f *Field) Load(src []float64) error {
	if len(src) != len(f.cur) {
		return fmt.Errorf("%w: load of %d cells into %dx%d", ErrInvalidDimensions, len(src), f.W, f.H)
	}
	for i, v := range src {
		f.cur[i] = f.clamp(v)
	}
	return nil
}
