package world

import (
	"testing"
	"time"

	"github.com/pthm-cable/substrate/clock"
	"github.com/pthm-cable/substrate/field"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testFieldConfigs() [NumQuantities]field.Config {
	var cfgs [NumQuantities]field.Config
	cfgs[Food] = field.Config{DiffusionRate: 0.2, DecayRate: 0.01, MaxValue: 1, GrowthRate: 0.1, GrowthCap: 1}
	cfgs[Water] = field.Config{DiffusionRate: 0.4, MaxValue: 1}
	cfgs[Trails] = field.Config{DiffusionRate: 0.1, DecayRate: 0.05, MaxValue: 1}
	return cfgs
}

func newTestChunk(t *testing.T, clk clock.Clock) *Chunk {
	t.Helper()
	c, err := NewChunk(0, 0, 8, testFieldConfigs(), clk)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return c
}

func TestChunkStateMachine(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)

	if c.State() != Dormant {
		t.Fatalf("new chunk state = %v, want dormant", c.State())
	}

	c.Activate()
	if c.State() != Active {
		t.Errorf("after Activate = %v, want active", c.State())
	}

	c.SetHyper()
	if c.State() != Hyper {
		t.Errorf("after SetHyper from active = %v, want hyper", c.State())
	}

	c.Activate()
	if c.State() != Hyper {
		t.Errorf("Activate downgraded hyper to %v", c.State())
	}

	c.Demote()
	if c.State() != Active {
		t.Errorf("after Demote = %v, want active", c.State())
	}

	d := newTestChunk(t, clk)
	d.SetHyper()
	if d.State() != Hyper {
		t.Errorf("SetHyper from dormant = %v, want hyper", d.State())
	}
}

func TestChunkSleepRequiresIdleTimeout(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)
	c.Activate()

	timeout := 10 * time.Second

	clk.Advance(5 * time.Second)
	if c.Sleep(timeout) {
		t.Fatal("Sleep succeeded before timeout")
	}
	if c.State() != Active {
		t.Fatalf("early Sleep changed state to %v", c.State())
	}

	clk.Advance(timeout)
	if !c.Sleep(timeout) {
		t.Fatal("Sleep failed after timeout")
	}
	if c.State() != Dormant {
		t.Errorf("state after sleep = %v, want dormant", c.State())
	}
	if c.Sleep(timeout) {
		t.Error("Sleep on dormant chunk reported a change")
	}
}

func TestChunkAccessRefreshesIdle(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)
	c.Activate()

	clk.Advance(20 * time.Second)
	c.GetValue(Food, 1, 1)
	if c.IdleFor() != 0 {
		t.Errorf("GetValue did not refresh idle timer: %v", c.IdleFor())
	}

	clk.Advance(20 * time.Second)
	if c.Sleep(30 * time.Second) {
		t.Error("chunk slept although it was read 20s ago")
	}
}

func TestDemoteKeepsIdleTimer(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)
	c.SetHyper()

	clk.Advance(time.Minute)
	c.Demote()
	if c.IdleFor() != time.Minute {
		t.Errorf("Demote refreshed idle timer: %v", c.IdleFor())
	}
}

func TestChunkFidelityTiers(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)
	c.fields[Food].Set(4, 4, 0.5)
	c.fields[Trails].Set(4, 4, 0.5)

	// Dormant: frozen.
	c.DiffuseDecayStep()
	c.GrowthStep()
	if got := c.fields[Food].Get(4, 4); got != 0.5 {
		t.Fatalf("dormant chunk advanced: %v", got)
	}

	// Active: diffusion and decay but no growth.
	c.Activate()
	before := c.fields[Food].Sum()
	c.GrowthStep()
	if got := c.fields[Food].Sum(); got != before {
		t.Errorf("active chunk grew: %v -> %v", before, got)
	}
	c.DiffuseDecayStep()
	if got := c.fields[Food].Get(4, 4); got >= 0.5 {
		t.Errorf("active chunk did not diffuse: center %v", got)
	}

	// Hyper: growth as well.
	c.SetHyper()
	before = c.fields[Food].Sum()
	c.GrowthStep()
	if got := c.fields[Food].Sum(); got <= before {
		t.Errorf("hyper chunk did not grow: %v -> %v", before, got)
	}
}

func TestChunkSnapshotRestore(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	c := newTestChunk(t, clk)
	c.SetValue(Water, 2, 3, 0.7)

	snap := c.Snapshot()
	c.SetValue(Water, 2, 3, 0)

	if err := c.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := c.GetValue(Water, 2, 3); got != 0.7 {
		t.Errorf("restored value = %v, want 0.7", got)
	}
}

func TestQuantityNames(t *testing.T) {
	for _, q := range Quantities {
		got, err := ParseQuantity(q.String())
		if err != nil || got != q {
			t.Errorf("ParseQuantity(%q) = %v, %v", q.String(), got, err)
		}
	}
	if _, err := ParseQuantity("lava"); err == nil {
		t.Error("expected error for unknown quantity")
	}
}
