package field

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Oasis is a radial deposit centered at (X, Y) that falls off linearly from
// Value at the center to zero at Radius. Coordinates are in grid cells and may
// lie outside the grid, which lets a caller recenter one world-space oasis
// into several neighboring grids.
type Oasis struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
	Value  float64 `yaml:"value"`
}

// At returns the oasis contribution at cell (x, y).
func (o Oasis) At(x, y int) float64 {
	if o.Radius <= 0 {
		if float64(x) == o.X && float64(y) == o.Y {
			return o.Value
		}
		return 0
	}
	d := math.Hypot(float64(x)-o.X, float64(y)-o.Y)
	if d >= o.Radius {
		return 0
	}
	return o.Value * (1 - d/o.Radius)
}

// InitWithOases clears the grid and writes the sum of all oases, clamped to
// MaxValue.
func (f *Field) InitWithOases(oases []Oasis) {
	f.Clear()
	f.AddOases(oases)
}

// AddOases adds every oasis on top of the current values, clamped to MaxValue.
func (f *Field) AddOases(oases []Oasis) {
	for _, o := range oases {
		x0 := max(int(math.Floor(o.X-o.Radius)), 0)
		x1 := min(int(math.Ceil(o.X+o.Radius)), f.W-1)
		y0 := max(int(math.Floor(o.Y-o.Radius)), 0)
		y1 := min(int(math.Ceil(o.Y+o.Radius)), f.H-1)
		for y := y0; y <= y1; y++ {
			row := y * f.W
			for x := x0; x <= x1; x++ {
				if v := o.At(x, y); v > 0 {
					f.cur[row+x] += v
				}
			}
		}
	}
	for i, v := range f.cur {
		f.cur[i] = f.clamp(v)
	}
}

// Noise seeds a field from normalized OpenSimplex noise. Sampling happens in
// world cell coordinates so adjacent grids seeded with their own origins line
// up without seams.
type Noise struct {
	Amplitude float64 `yaml:"amplitude"`
	Frequency float64 `yaml:"frequency"`
	Seed      int64   `yaml:"seed"`

	src opensimplex.Noise
}

// NewNoise creates a noise generator.
func NewNoise(amplitude, frequency float64, seed int64) *Noise {
	return &Noise{
		Amplitude: amplitude,
		Frequency: frequency,
		Seed:      seed,
		src:       opensimplex.NewNormalized(seed),
	}
}

// Sample returns the noise value at world cell (x, y).
func (n *Noise) Sample(x, y int) float64 {
	if n.src == nil {
		n.src = opensimplex.NewNormalized(n.Seed)
	}
	return n.Amplitude * n.src.Eval2(float64(x)*n.Frequency, float64(y)*n.Frequency)
}

// Generate overwrites f with noise, treating local (0,0) as world cell
// (originX, originY).
func (n *Noise) Generate(f *Field, originX, originY int) {
	for y := 0; y < f.H; y++ {
		row := y * f.W
		for x := 0; x < f.W; x++ {
			f.cur[row+x] = f.clamp(n.Sample(originX+x, originY+y))
		}
	}
}

// InitWithNoise overwrites the grid with seeded noise in local coordinates.
func (f *Field) InitWithNoise(amplitude, frequency float64, seed int64) {
	NewNoise(amplitude, frequency, seed).Generate(f, 0, 0)
}

// InitWithNoiseAt is InitWithNoise with the grid origin placed at world cell
// (originX, originY).
func (f *Field) InitWithNoiseAt(amplitude, frequency float64, seed int64, originX, originY int) {
	NewNoise(amplitude, frequency, seed).Generate(f, originX, originY)
}
