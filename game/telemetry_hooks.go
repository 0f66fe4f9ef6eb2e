package game

import (
	"log/slog"

	"github.com/pthm-cable/substrate/telemetry"
)

// sampleWorld computes world stats and hands them to the callback, the log
// and the CSV output.
func (g *Game) sampleWorld(tick uint64) error {
	stats := telemetry.ComputeWorldStats(tick, g.world)
	stats.Emitters = g.emitters.Len()
	g.lastStats = stats

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}
	if g.logStats {
		stats.LogStats()
	}
	return g.outputManager.WriteWorld(stats)
}

// flushPerf aggregates the perf window and writes it out. It also re-arms
// the overrun warnings.
func (g *Game) flushPerf(tick uint64) error {
	perfStats := g.perfCollector.Stats()
	g.overrunWarned = [len(g.overrunWarned)]bool{}
	if g.logStats {
		slog.Info("perf", "tick", tick, "perf", perfStats)
	}
	return g.outputManager.WritePerf(perfStats, tick)
}

// reap sleeps lingering chunks and evicts long-dormant ones.
func (g *Game) reap(tick uint64) error {
	slept, evicted := g.world.Reap()
	if slept > 0 || evicted > 0 {
		slog.Debug("chunks reaped", "tick", tick, "slept", slept, "evicted", evicted)
	}
	return nil
}
