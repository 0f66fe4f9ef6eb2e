// Package game wires the chunked world, emitters, focus camera, telemetry and
// backing store together and drives them from the tiered scheduler.
package game

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/substrate/camera"
	"github.com/pthm-cable/substrate/clock"
	"github.com/pthm-cable/substrate/config"
	"github.com/pthm-cable/substrate/emitter"
	"github.com/pthm-cable/substrate/field"
	"github.com/pthm-cable/substrate/scheduler"
	"github.com/pthm-cable/substrate/store"
	"github.com/pthm-cable/substrate/telemetry"
	"github.com/pthm-cable/substrate/world"
)

// Options configures a game run.
type Options struct {
	Config    *config.Config // nil = config.Cfg()
	Seed      int64          // 0 = world.seed from config
	LogStats  bool
	OutputDir string
	StorePath string      // overrides store.path when set
	Clock     clock.Clock // nil = system clock

	StatsCallback func(telemetry.WorldStats)
}

// Game holds the complete simulation state.
type Game struct {
	cfg  *config.Config
	seed int64

	world    *world.Manager
	sched    *scheduler.Scheduler
	emitters *emitter.System
	camera   *camera.Camera
	store    *store.SQLite

	// Telemetry
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WorldStats)
	lastStats     telemetry.WorldStats
	lastMetrics   scheduler.Metrics

	// overrunWarned limits overrun warnings to one per tier per perf window.
	overrunWarned [scheduler.NumRates]bool
}

// NewGameWithOptions builds the world from configuration and registers the
// simulation tasks.
func NewGameWithOptions(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.World.Seed
	}

	g := &Game{
		cfg:           cfg,
		seed:          seed,
		emitters:      emitter.New(),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	var err error
	g.world, err = world.NewManager(cfg.Derived.World, cfg.Derived.Fields, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("creating world: %w", err)
	}

	storePath := cfg.Store.Path
	if opts.StorePath != "" {
		storePath = opts.StorePath
	}
	if storePath != "" {
		g.store, err = store.Open(storePath, cfg.Store.WorldID)
		if err != nil {
			return nil, fmt.Errorf("opening chunk store: %w", err)
		}
		g.world.SetStore(g.store)
		slog.Info("chunk store opened", "path", storePath, "world_id", g.store.WorldID())
	}

	g.seedTerrain()

	for _, e := range cfg.Derived.Emitters {
		g.emitters.Add(e.X, e.Y, e.Quantity, e.Rate, e.TTL)
	}

	wc := cfg.Derived.World
	var worldW, worldH float64
	if wc.Bounded() {
		worldW = float64(wc.Width * wc.ChunkSide)
		worldH = float64(wc.Height * wc.ChunkSide)
	}
	g.camera = camera.New(cfg.Camera.X, cfg.Camera.Y, wc.ChunkSide, worldW, worldH)
	g.camera.SetVelocity(cfg.Camera.VelX, cfg.Camera.VelY)

	g.sched, err = scheduler.New(cfg.Derived.Scheduler, opts.Clock)
	if err != nil {
		g.closeStore()
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	if err := g.registerTasks(); err != nil {
		g.closeStore()
		return nil, err
	}

	g.outputManager, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		g.closeStore()
		return nil, err
	}
	if g.outputManager != nil {
		slog.Info("writing output", "dir", g.outputManager.Dir(), "run_id", g.outputManager.RunID())
	}
	if err := g.outputManager.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	return g, nil
}

// seedTerrain installs a generator per quantity that lays down noise and the
// configured oases, so chunks created later are seeded the same way.
func (g *Game) seedTerrain() {
	for _, q := range world.Quantities {
		qc := g.cfg.Quantity(q)
		t := &terrain{oases: qc.Oases}
		if qc.Noise.Amplitude > 0 {
			t.noise = field.NewNoise(qc.Noise.Amplitude, qc.Noise.Frequency, g.seed+qc.Noise.SeedOffset)
		}
		if t.noise == nil && len(t.oases) == 0 {
			continue
		}
		g.world.SetGenerator(q, t)
	}
}

// terrain seeds a chunk field with noise plus world-space oases.
type terrain struct {
	noise *field.Noise
	oases []field.Oasis
}

func (t *terrain) Generate(f *field.Field, originX, originY int) {
	if t.noise != nil {
		t.noise.Generate(f, originX, originY)
	}
	if len(t.oases) == 0 {
		return
	}
	local := make([]field.Oasis, 0, len(t.oases))
	for _, o := range t.oases {
		o.X -= float64(originX)
		o.Y -= float64(originY)
		if o.X+o.Radius < 0 || o.Y+o.Radius < 0 || o.X-o.Radius >= float64(f.W) || o.Y-o.Radius >= float64(f.H) {
			continue
		}
		local = append(local, o)
	}
	f.AddOases(local)
}

// UpdateHeadless runs one scheduler step and records its metrics.
func (g *Game) UpdateHeadless() scheduler.Metrics {
	m := g.sched.Step()
	g.perfCollector.Record(m)
	g.lastMetrics = m

	for r, tier := range m.Tiers {
		if !tier.Overrun || g.overrunWarned[r] {
			continue
		}
		g.overrunWarned[r] = true
		slog.Warn("tier over budget",
			"tick", m.Tick,
			"rate", tier.Rate.String(),
			"elapsed_us", tier.Elapsed.Microseconds(),
			"budget_us", tier.Budget.Microseconds(),
		)
	}
	return m
}

// Tick returns the number of completed scheduler steps.
func (g *Game) Tick() uint64 { return g.sched.Tick() }

// Manager returns the chunk manager.
func (g *Game) Manager() *world.Manager { return g.world }

// Scheduler returns the task scheduler.
func (g *Game) Scheduler() *scheduler.Scheduler { return g.sched }

// Emitters returns the emitter system.
func (g *Game) Emitters() *emitter.System { return g.emitters }

// Camera returns the focus camera.
func (g *Game) Camera() *camera.Camera { return g.camera }

// LastStats returns the most recent world stats sample.
func (g *Game) LastStats() telemetry.WorldStats { return g.lastStats }

// LastMetrics returns the metrics of the most recent step.
func (g *Game) LastMetrics() scheduler.Metrics { return g.lastMetrics }

// Unload flushes resident chunks to the store and closes outputs.
func (g *Game) Unload() {
	if g.store != nil {
		if err := g.world.Flush(); err != nil {
			slog.Error("failed to flush chunks", "error", err)
		}
	}
	g.closeStore()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}

func (g *Game) closeStore() {
	if g.store == nil {
		return
	}
	if err := g.store.Close(); err != nil {
		slog.Error("failed to close chunk store", "error", err)
	}
	g.store = nil
}
