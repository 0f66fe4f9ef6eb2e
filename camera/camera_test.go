package camera

import (
	"math"
	"testing"
)

func TestNewWrapsIntoBoundedWorld(t *testing.T) {
	cam := New(-10, 300, 64, 256, 256)

	if cam.X != 246 || cam.Y != 44 {
		t.Errorf("expected camera at (246, 44), got (%f, %f)", cam.X, cam.Y)
	}
}

func TestUnboundedDoesNotWrap(t *testing.T) {
	cam := New(-10, 5000, 64, 0, 0)
	cam.Pan(-100, 100)

	if cam.X != -110 || cam.Y != 5100 {
		t.Errorf("expected (-110, 5100), got (%f, %f)", cam.X, cam.Y)
	}
}

func TestChunkNegativeCoordinates(t *testing.T) {
	testCases := []struct {
		x, y   float64
		cx, cy int
	}{
		{0, 0, 0, 0},
		{63.9, 63.9, 0, 0},
		{64, 0, 1, 0},
		{-0.5, -0.5, -1, -1},
		{-64, -65, -1, -2},
	}

	for _, tc := range testCases {
		cam := New(tc.x, tc.y, 64, 0, 0)
		cx, cy := cam.Chunk()
		if cx != tc.cx || cy != tc.cy {
			t.Errorf("Chunk at (%v,%v) = (%d,%d), want (%d,%d)", tc.x, tc.y, cx, cy, tc.cx, tc.cy)
		}
	}
}

func TestUpdateReportsChunkCrossings(t *testing.T) {
	cam := New(0, 0, 10, 0, 0)
	cam.SetVelocity(4, 0)

	// 4, 8, 12, 16, 20, 24
	want := []bool{true, false, true, false, true, false}
	for i, w := range want {
		if got := cam.Update(); got != w {
			t.Errorf("update %d at x=%v: changed = %v, want %v", i, cam.X, got, w)
		}
	}
}

func TestResetReprimes(t *testing.T) {
	cam := New(5, 5, 10, 100, 100)
	cam.Update()
	cam.Reset()

	if cam.X != 50 || cam.Y != 50 {
		t.Errorf("expected center (50, 50), got (%f, %f)", cam.X, cam.Y)
	}
	if !cam.Update() {
		t.Error("first update after reset should report a change")
	}
}

func TestToroidalDelta(t *testing.T) {
	cam := New(10, 50, 16, 100, 100)

	// The right edge is closer going left across the seam
	dx, dy := cam.Delta(95, 50)
	if math.Abs(dx-(-15)) > 1e-9 || dy != 0 {
		t.Errorf("expected delta (-15, 0), got (%f, %f)", dx, dy)
	}

	unbounded := New(10, 50, 16, 0, 0)
	dx, _ = unbounded.Delta(95, 50)
	if dx != 85 {
		t.Errorf("unbounded delta = %f, want 85", dx)
	}
}

func TestPanWrapsAroundSeam(t *testing.T) {
	cam := New(98, 1, 16, 100, 100)
	cam.Pan(5, -3)

	if math.Abs(cam.X-3) > 1e-9 || math.Abs(cam.Y-98) > 1e-9 {
		t.Errorf("expected (3, 98), got (%f, %f)", cam.X, cam.Y)
	}
}
