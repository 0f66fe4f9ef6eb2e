// Package emitter keeps point sources that deposit (or drain) a quantity at
// a fixed world cell every tick, stored as ECS entities.
package emitter

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/substrate/world"
)

// Position is a world cell.
type Position struct {
	X, Y int
}

// Emission describes what an entity deposits each tick.
type Emission struct {
	Quantity world.Quantity
	Rate     float64 // per tick, negative drains
	TTL      int     // remaining ticks, 0 = forever
	Expires  bool
}

// Sink receives deposits. *world.Manager satisfies it.
type Sink interface {
	AddValue(q world.Quantity, wx, wy int, delta float64)
}

// System owns the emitter entities.
type System struct {
	world  *ecs.World
	mapper *ecs.Map2[Position, Emission]
	filter *ecs.Filter2[Position, Emission]

	expired []ecs.Entity
}

// New creates an empty emitter system.
func New() *System {
	w := ecs.NewWorld()
	return &System{
		world:  w,
		mapper: ecs.NewMap2[Position, Emission](w),
		filter: ecs.NewFilter2[Position, Emission](w),
	}
}

// Add creates an emitter. ttl is the number of ticks it lives; 0 keeps it
// until removed.
func (s *System) Add(x, y int, q world.Quantity, rate float64, ttl int) ecs.Entity {
	pos := Position{X: x, Y: y}
	em := Emission{Quantity: q, Rate: rate, TTL: ttl, Expires: ttl > 0}
	return s.mapper.NewEntity(&pos, &em)
}

// Remove deletes an emitter and reports whether it was alive.
func (s *System) Remove(e ecs.Entity) bool {
	if !s.world.Alive(e) {
		return false
	}
	s.world.RemoveEntity(e)
	return true
}

// Alive reports whether e is still emitting.
func (s *System) Alive(e ecs.Entity) bool { return s.world.Alive(e) }

// Len returns the number of live emitters.
func (s *System) Len() int {
	n := 0
	query := s.filter.Query()
	for query.Next() {
		n++
	}
	return n
}

// Step deposits every emitter's rate into sink and retires expired ones.
// It returns the total amount requested.
func (s *System) Step(sink Sink) float64 {
	var total float64

	query := s.filter.Query()
	for query.Next() {
		pos, em := query.Get()
		if !em.Quantity.Valid() {
			continue
		}
		sink.AddValue(em.Quantity, pos.X, pos.Y, em.Rate)
		total += em.Rate

		if em.Expires {
			em.TTL--
			if em.TTL <= 0 {
				s.expired = append(s.expired, query.Entity())
			}
		}
	}

	// Structural changes must wait until the query is closed.
	for _, e := range s.expired {
		s.world.RemoveEntity(e)
	}
	s.expired = s.expired[:0]

	return total
}
