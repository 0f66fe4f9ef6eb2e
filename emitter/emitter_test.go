package emitter

import (
	"math"
	"testing"

	"github.com/pthm-cable/substrate/field"
	"github.com/pthm-cable/substrate/world"
)

type deposit struct {
	q      world.Quantity
	x, y   int
	amount float64
}

type recordingSink struct {
	deposits []deposit
}

func (r *recordingSink) AddValue(q world.Quantity, wx, wy int, delta float64) {
	r.deposits = append(r.deposits, deposit{q, wx, wy, delta})
}

func TestStepDeposits(t *testing.T) {
	s := New()
	s.Add(3, -4, world.Water, 0.25, 0)
	s.Add(10, 10, world.Food, -0.1, 0)

	sink := &recordingSink{}
	total := s.Step(sink)

	if len(sink.deposits) != 2 {
		t.Fatalf("deposits = %d, want 2", len(sink.deposits))
	}
	if math.Abs(total-0.15) > 1e-12 {
		t.Errorf("total = %v, want 0.15", total)
	}

	var sawWater bool
	for _, d := range sink.deposits {
		if d.q == world.Water {
			sawWater = true
			if d.x != 3 || d.y != -4 || d.amount != 0.25 {
				t.Errorf("water deposit = %+v", d)
			}
		}
	}
	if !sawWater {
		t.Error("water emitter did not deposit")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New()
	e := s.Add(0, 0, world.Trails, 1, 2)
	s.Add(1, 1, world.Trails, 1, 0)

	sink := &recordingSink{}
	s.Step(sink)
	if !s.Alive(e) {
		t.Fatal("emitter expired after one of two ticks")
	}
	s.Step(sink)
	if s.Alive(e) {
		t.Fatal("emitter alive after its ttl")
	}
	if s.Len() != 1 {
		t.Errorf("live emitters = %d, want 1", s.Len())
	}

	sink.deposits = nil
	s.Step(sink)
	if len(sink.deposits) != 1 {
		t.Errorf("deposits after expiry = %d, want 1", len(sink.deposits))
	}
}

func TestRemove(t *testing.T) {
	s := New()
	e := s.Add(0, 0, world.Food, 1, 0)

	if !s.Remove(e) {
		t.Fatal("Remove returned false for live emitter")
	}
	if s.Remove(e) {
		t.Error("Remove returned true for removed emitter")
	}
	if s.Len() != 0 {
		t.Errorf("live emitters = %d, want 0", s.Len())
	}
}

func TestDepositsIntoManager(t *testing.T) {
	cfg := world.DefaultConfig()
	cfg.ChunkSide = 16
	var fields [world.NumQuantities]field.Config
	for _, q := range world.Quantities {
		fields[q] = field.Config{MaxValue: 10}
	}
	m, err := world.NewManager(cfg, fields, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	s := New()
	s.Add(-5, 7, world.Water, 0.5, 0)
	for i := 0; i < 4; i++ {
		s.Step(m)
	}
	if got := m.GetValue(world.Water, -5, 7); got != 2 {
		t.Errorf("water at emitter = %v, want 2", got)
	}
}
