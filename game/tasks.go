package game

import (
	"fmt"

	"github.com/pthm-cable/substrate/scheduler"
)

// Task ids.
const (
	TaskEmitters = "emitters"
	TaskCamera   = "camera"
	TaskChunks   = "chunks"
	TaskStats    = "stats"
	TaskReap     = "reap"
	TaskPerfLog  = "perf_log"
)

// registerTasks wires the simulation into the scheduler. Within the fast
// tier, emitters deposit before the focus moves and chunks advance last.
func (g *Game) registerTasks() error {
	tasks := []scheduler.Task{
		{ID: TaskEmitters, Rate: scheduler.Fast, Priority: 0, Fn: func(uint64) error {
			g.emitters.Step(g.world)
			return nil
		}},
		{ID: TaskCamera, Rate: scheduler.Fast, Priority: 5, Fn: func(uint64) error {
			if g.camera.Update() {
				g.world.SetFocus(g.camera.Cell())
			}
			return nil
		}},
		{ID: TaskChunks, Rate: scheduler.Fast, Priority: 10, Fn: func(uint64) error {
			g.world.Step()
			return nil
		}},
		{ID: TaskStats, Rate: scheduler.Medium, Priority: 10, Fn: g.sampleWorld},
		{ID: TaskReap, Rate: scheduler.Slow, Priority: 10, Fn: g.reap},
		{ID: TaskPerfLog, Rate: scheduler.Slow, Priority: 20, Fn: g.flushPerf},
	}
	for _, t := range tasks {
		if err := g.sched.Register(t); err != nil {
			return fmt.Errorf("registering %s: %w", t.ID, err)
		}
	}
	return nil
}
