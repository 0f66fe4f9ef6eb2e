// Package camera drives the world's focus point: a position in world cells
// that drifts at a fixed velocity and reports when it crosses into a new chunk.
package camera

import "math"

// Camera tracks the focus position in world cells.
// Bounded worlds wrap toroidally; unbounded worlds do not wrap.
type Camera struct {
	// Position in world cells
	X, Y float64

	// Drift per Update, in cells
	VelX, VelY float64

	// World dimensions in cells (0 = unbounded)
	WorldW, WorldH float64

	chunkSide int

	lastCX, lastCY int
	primed         bool
}

// New creates a camera at (x, y). worldW/worldH of 0 leave that axis unbounded.
func New(x, y float64, chunkSide int, worldW, worldH float64) *Camera {
	if chunkSide < 1 {
		chunkSide = 1
	}
	c := &Camera{
		WorldW:    worldW,
		WorldH:    worldH,
		chunkSide: chunkSide,
	}
	c.X = wrap(x, worldW)
	c.Y = wrap(y, worldH)
	return c
}

// SetVelocity sets the per-Update drift.
func (c *Camera) SetVelocity(vx, vy float64) {
	c.VelX, c.VelY = vx, vy
}

// Pan moves the camera by (dx, dy) cells, wrapping on bounded axes.
func (c *Camera) Pan(dx, dy float64) {
	c.X = wrap(c.X+dx, c.WorldW)
	c.Y = wrap(c.Y+dy, c.WorldH)
}

// MoveTo places the camera at (x, y).
func (c *Camera) MoveTo(x, y float64) {
	c.X = wrap(x, c.WorldW)
	c.Y = wrap(y, c.WorldH)
}

// Update applies one step of drift and reports whether the camera now sits
// in a different chunk than at the previous Update. The first call always
// reports true.
func (c *Camera) Update() bool {
	c.Pan(c.VelX, c.VelY)

	cx, cy := c.Chunk()
	changed := !c.primed || cx != c.lastCX || cy != c.lastCY
	c.lastCX, c.lastCY, c.primed = cx, cy, true
	return changed
}

// Cell returns the world cell under the camera.
func (c *Camera) Cell() (int, int) {
	return int(math.Floor(c.X)), int(math.Floor(c.Y))
}

// Chunk returns the chunk under the camera.
func (c *Camera) Chunk() (int, int) {
	x, y := c.Cell()
	return floorDiv(x, c.chunkSide), floorDiv(y, c.chunkSide)
}

// Delta returns the shortest signed offset from the camera to (wx, wy),
// taking the toroidal path on bounded axes.
func (c *Camera) Delta(wx, wy float64) (dx, dy float64) {
	return toroidalDelta(wx, c.X, c.WorldW), toroidalDelta(wy, c.Y, c.WorldH)
}

// Reset returns the camera to the world center (or origin when unbounded).
func (c *Camera) Reset() {
	c.X = c.WorldW / 2
	c.Y = c.WorldH / 2
	c.primed = false
}

// toroidalDelta computes the shortest signed distance from 'from' to 'to'
// in a toroidal space of the given size. size <= 0 means no wrapping.
func toroidalDelta(to, from, size float64) float64 {
	d := to - from
	if size <= 0 {
		return d
	}
	if d > size/2 {
		d -= size
	} else if d < -size/2 {
		d += size
	}
	return d
}

// wrap computes the positive modulo (Go's math.Mod can return negative).
func wrap(x, m float64) float64 {
	if m <= 0 {
		return x
	}
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
