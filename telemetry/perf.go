package telemetry

import (
	"log/slog"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/substrate/scheduler"
)

// PerfSample holds timing data for a single scheduler step.
type PerfSample struct {
	Tick         uint64
	TickDuration time.Duration
	Tasks        map[string]time.Duration
	Overruns     [scheduler.NumRates]bool
	Failures     int
}

// PerfCollector tracks scheduler metrics over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int
	lastTick    uint64
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to aggregate over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
	}
}

// Record adds one step's metrics to the window.
func (p *PerfCollector) Record(m scheduler.Metrics) {
	sample := PerfSample{
		Tick:         m.Tick,
		TickDuration: m.Elapsed,
		Tasks:        make(map[string]time.Duration, len(m.Tasks)),
	}
	for _, t := range m.Tasks {
		sample.Tasks[t.ID] += t.Duration
		if t.Err != nil {
			sample.Failures++
		}
	}
	for r, tier := range m.Tiers {
		sample.Overruns[r] = tier.Overrun
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.lastTick = m.Tick
}

// LastTick returns the tick of the most recent sample.
func (p *PerfCollector) LastTick() uint64 { return p.lastTick }

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	Samples int

	// Step timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	StdTickDuration time.Duration
	P95TickDuration time.Duration

	// Per-task average duration over the window and share of step time.
	// Tasks that run on slower tiers are averaged over every step.
	TaskAvg map[string]time.Duration
	TaskPct map[string]float64

	TicksPerSecond float64

	Overruns [scheduler.NumRates]int
	Failures int
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			TaskAvg: make(map[string]time.Duration),
			TaskPct: make(map[string]float64),
		}
	}

	durations := make([]float64, p.sampleCount)
	var minTick, maxTick time.Duration
	taskSum := make(map[string]time.Duration)
	var overruns [scheduler.NumRates]int
	var failures int

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		durations[i] = float64(s.TickDuration)

		if i == 0 || s.TickDuration < minTick {
			minTick = s.TickDuration
		}
		if s.TickDuration > maxTick {
			maxTick = s.TickDuration
		}
		for id, d := range s.Tasks {
			taskSum[id] += d
		}
		for r, over := range s.Overruns {
			if over {
				overruns[r]++
			}
		}
		failures += s.Failures
	}

	mean := stat.Mean(durations, nil)
	var std float64
	if len(durations) > 1 {
		std = stat.StdDev(durations, nil)
	}
	sort.Float64s(durations)
	p95 := Percentile(durations, 0.95)

	avgTick := time.Duration(mean)
	taskAvg := make(map[string]time.Duration, len(taskSum))
	taskPct := make(map[string]float64, len(taskSum))
	for id, sum := range taskSum {
		taskAvg[id] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			taskPct[id] = float64(taskAvg[id]) / float64(avgTick) * 100
		}
	}

	var ticksPerSec float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}

	return PerfStats{
		Samples:         p.sampleCount,
		AvgTickDuration: avgTick,
		MinTickDuration: minTick,
		MaxTickDuration: maxTick,
		StdTickDuration: time.Duration(std),
		P95TickDuration: time.Duration(p95),
		TaskAvg:         taskAvg,
		TaskPct:         taskPct,
		TicksPerSecond:  ticksPerSec,
		Overruns:        overruns,
		Failures:        failures,
	}
}

// TopTask returns the task with the largest share of step time.
func (s PerfStats) TopTask() (string, float64) {
	ids := make([]string, 0, len(s.TaskPct))
	for id := range s.TaskPct {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var top string
	var pct float64
	for _, id := range ids {
		if s.TaskPct[id] > pct {
			top, pct = id, s.TaskPct[id]
		}
	}
	return top, pct
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for r, n := range s.Overruns {
		if n > 0 {
			attrs = append(attrs, slog.Int(scheduler.Rate(r).String()+"_overruns", n))
		}
	}
	if s.Failures > 0 {
		attrs = append(attrs, slog.Int("failures", s.Failures))
	}
	for id, pct := range s.TaskPct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(id+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	RunID          string  `csv:"run_id"`
	WindowEnd      uint64  `csv:"window_end"`
	Samples        int     `csv:"samples"`
	AvgTickUS      int64   `csv:"avg_tick_us"`
	MinTickUS      int64   `csv:"min_tick_us"`
	MaxTickUS      int64   `csv:"max_tick_us"`
	StdTickUS      int64   `csv:"std_tick_us"`
	P95TickUS      int64   `csv:"p95_tick_us"`
	TicksPerSec    float64 `csv:"ticks_per_sec"`
	FastOverruns   int     `csv:"fast_overruns"`
	MediumOverruns int     `csv:"medium_overruns"`
	SlowOverruns   int     `csv:"slow_overruns"`
	Failures       int     `csv:"failures"`
	TopTask        string  `csv:"top_task"`
	TopTaskPct     float64 `csv:"top_task_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	top, pct := s.TopTask()
	return PerfStatsCSV{
		WindowEnd:      windowEnd,
		Samples:        s.Samples,
		AvgTickUS:      s.AvgTickDuration.Microseconds(),
		MinTickUS:      s.MinTickDuration.Microseconds(),
		MaxTickUS:      s.MaxTickDuration.Microseconds(),
		StdTickUS:      s.StdTickDuration.Microseconds(),
		P95TickUS:      s.P95TickDuration.Microseconds(),
		TicksPerSec:    s.TicksPerSecond,
		FastOverruns:   s.Overruns[scheduler.Fast],
		MediumOverruns: s.Overruns[scheduler.Medium],
		SlowOverruns:   s.Overruns[scheduler.Slow],
		Failures:       s.Failures,
		TopTask:        top,
		TopTaskPct:     pct,
	}
}
