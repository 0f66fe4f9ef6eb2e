package scheduler

import (
	"log/slog"
	"time"
)

// TaskMetrics records one task execution.
type TaskMetrics struct {
	ID       string
	Rate     Rate
	Priority int
	Duration time.Duration
	Err      error
}

// TierMetrics summarizes one tier within a step.
type TierMetrics struct {
	Rate     Rate
	Ran      bool
	Tasks    int
	Elapsed  time.Duration
	Budget   time.Duration
	Overrun  bool
	Failures int
}

// Metrics is the result of one Step.
type Metrics struct {
	Tick    uint64
	Tasks   []TaskMetrics // in execution order
	Tiers   [NumRates]TierMetrics
	Elapsed time.Duration
}

// Overrun reports whether any tier exceeded its budget.
func (m Metrics) Overrun() bool {
	for _, t := range m.Tiers {
		if t.Overrun {
			return true
		}
	}
	return false
}

// Failed returns the tasks that returned an error or panicked.
func (m Metrics) Failed() []TaskMetrics {
	var out []TaskMetrics
	for _, t := range m.Tasks {
		if t.Err != nil {
			out = append(out, t)
		}
	}
	return out
}

// Task returns the metrics for id, if it ran this step.
func (m Metrics) Task(id string) (TaskMetrics, bool) {
	for _, t := range m.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskMetrics{}, false
}

// LogValue implements slog.LogValuer.
func (m Metrics) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("tick", m.Tick),
		slog.Int64("elapsed_us", m.Elapsed.Microseconds()),
	}
	for _, t := range m.Tiers {
		if !t.Ran {
			continue
		}
		name := t.Rate.String()
		attrs = append(attrs,
			slog.Int(name+"_tasks", t.Tasks),
			slog.Int64(name+"_us", t.Elapsed.Microseconds()),
		)
		if t.Overrun {
			attrs = append(attrs, slog.Bool(name+"_overrun", true))
		}
		if t.Failures > 0 {
			attrs = append(attrs, slog.Int(name+"_failures", t.Failures))
		}
	}
	return slog.GroupValue(attrs...)
}
