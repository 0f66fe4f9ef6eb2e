// Package scheduler runs named tasks at three rates off a single tick
// counter. It is cooperative and single-threaded: Step runs every due task to
// completion, in tier order and then priority order, and reports timings.
package scheduler

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/pthm-cable/substrate/clock"
)

var (
	// ErrInvalidTask is returned by Register for malformed tasks.
	ErrInvalidTask = errors.New("scheduler: invalid task")
	// ErrInvalidConfig is returned for unusable intervals.
	ErrInvalidConfig = errors.New("scheduler: invalid config")
)

// Rate is a task's firing tier.
type Rate uint8

const (
	Fast Rate = iota
	Medium
	Slow

	NumRates
)

func (r Rate) String() string {
	switch r {
	case Fast:
		return "fast"
	case Medium:
		return "medium"
	case Slow:
		return "slow"
	}
	return fmt.Sprintf("rate(%d)", uint8(r))
}

// ParseRate maps a config name to a Rate.
func ParseRate(s string) (Rate, error) {
	for r := Fast; r < NumRates; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rate %q", s)
}

// Task is a unit of scheduled work. Lower priorities run first.
type Task struct {
	ID       string
	Rate     Rate
	Priority int
	Fn       func(tick uint64) error
}

// Config sets tier cadences and soft budgets.
type Config struct {
	// MediumInterval and SlowInterval are in ticks; Fast runs every tick.
	MediumInterval uint64
	SlowInterval   uint64

	// Budgets are advisory per-tier time allowances. Zero means unbudgeted.
	Budgets [NumRates]time.Duration
}

// DefaultConfig runs MEDIUM every 10 ticks and SLOW every 100.
func DefaultConfig() Config {
	return Config{
		MediumInterval: 10,
		SlowInterval:   100,
		Budgets: [NumRates]time.Duration{
			Fast:   4 * time.Millisecond,
			Medium: 8 * time.Millisecond,
			Slow:   16 * time.Millisecond,
		},
	}
}

// Validate checks the intervals.
func (c Config) Validate() error {
	if c.MediumInterval == 0 || c.SlowInterval == 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.SlowInterval < c.MediumInterval {
		return fmt.Errorf("%w: slow interval %d below medium interval %d", ErrInvalidConfig, c.SlowInterval, c.MediumInterval)
	}
	for r, b := range c.Budgets {
		if b < 0 {
			return fmt.Errorf("%w: negative %s budget", ErrInvalidConfig, Rate(r))
		}
	}
	return nil
}

type entry struct {
	Task
	seq uint64 // registration order, kept across replacement
}

// Scheduler is a registry of tasks stepped once per tick.
type Scheduler struct {
	cfg   Config
	clock clock.Clock

	tick    uint64
	tasks   map[string]*entry
	nextSeq uint64

	// tiers holds each rate's tasks in run order; rebuilt when dirty.
	tiers [NumRates][]*entry
	dirty bool

	stats Stats
}

// New creates a scheduler. A nil clock uses the system clock.
func New(cfg Config, clk clock.Clock) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{
		cfg:   cfg,
		clock: clk,
		tasks: make(map[string]*entry),
	}, nil
}

// Config returns the scheduler settings.
func (s *Scheduler) Config() Config { return s.cfg }

// Tick returns the number of completed steps.
func (s *Scheduler) Tick() uint64 { return s.tick }

// Register adds t, replacing any task with the same ID. A replaced task keeps
// its original position among equal priorities.
func (s *Scheduler) Register(t Task) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidTask)
	case t.Fn == nil:
		return fmt.Errorf("%w: %s has no function", ErrInvalidTask, t.ID)
	case t.Rate >= NumRates:
		return fmt.Errorf("%w: %s has unknown rate %d", ErrInvalidTask, t.ID, t.Rate)
	}

	if e, ok := s.tasks[t.ID]; ok {
		e.Task = t
	} else {
		s.tasks[t.ID] = &entry{Task: t, seq: s.nextSeq}
		s.nextSeq++
	}
	s.dirty = true
	return nil
}

// Unregister removes the task with id and reports whether it existed.
func (s *Scheduler) Unregister(id string) bool {
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	s.dirty = true
	return true
}

func (s *Scheduler) rebuild() {
	for r := range s.tiers {
		s.tiers[r] = s.tiers[r][:0]
	}
	for _, e := range s.tasks {
		s.tiers[e.Rate] = append(s.tiers[e.Rate], e)
	}
	for r := range s.tiers {
		slices.SortFunc(s.tiers[r], func(a, b *entry) int {
			if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
				return c
			}
			return cmp.Compare(a.seq, b.seq)
		})
	}
	s.dirty = false
}

// due reports whether rate r fires on tick.
func (s *Scheduler) due(r Rate, tick uint64) bool {
	switch r {
	case Fast:
		return true
	case Medium:
		return tick%s.cfg.MediumInterval == 0
	case Slow:
		return tick%s.cfg.SlowInterval == 0
	}
	return false
}

// Step advances the tick counter and runs every due tier. Task errors and
// panics are contained per task and reported in the returned metrics;
// budget overruns are flagged but never cut a tier short.
func (s *Scheduler) Step() Metrics {
	if s.dirty {
		s.rebuild()
	}
	s.tick++
	tick := s.tick

	m := Metrics{Tick: tick}
	stepStart := s.clock.Now()

	for r := Fast; r < NumRates; r++ {
		tm := &m.Tiers[r]
		tm.Rate = r
		tm.Budget = s.cfg.Budgets[r]
		if !s.due(r, tick) {
			continue
		}
		tm.Ran = true

		// Snapshot the order so tasks registering others mid-step don't
		// disturb this tier.
		order := slices.Clone(s.tiers[r])
		for _, e := range order {
			res := s.run(e, tick)
			m.Tasks = append(m.Tasks, res)
			tm.Tasks++
			tm.Elapsed += res.Duration
			if res.Err != nil {
				tm.Failures++
				s.stats.Failures++
				slog.Warn("task failed", "task", e.ID, "rate", r.String(), "tick", tick, "error", res.Err)
			}
		}
		if tm.Budget > 0 && tm.Elapsed > tm.Budget {
			tm.Overrun = true
			s.stats.Overruns[r]++
		}
		s.stats.Runs[r]++
	}

	m.Elapsed = s.clock.Now().Sub(stepStart)
	return m
}

// run executes one task, converting a panic into an error.
func (s *Scheduler) run(e *entry, tick uint64) (res TaskMetrics) {
	res = TaskMetrics{ID: e.ID, Rate: e.Rate, Priority: e.Priority}
	start := s.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = &PanicError{Task: e.ID, Value: p, Stack: debug.Stack()}
		}
		res.Duration = s.clock.Now().Sub(start)
	}()
	res.Err = e.Fn(tick)
	return res
}

// PanicError wraps a panic recovered from a task.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Stats summarizes the scheduler's lifetime.
type Stats struct {
	Tick       uint64
	Registered [NumRates]int
	Runs       [NumRates]uint64 // tier firings
	Overruns   [NumRates]uint64
	Failures   uint64
}

// Stats returns lifetime counters and current registrations per tier.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Tick = s.tick
	for _, e := range s.tasks {
		st.Registered[e.Rate]++
	}
	return st
}
