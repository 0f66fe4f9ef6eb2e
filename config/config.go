// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/substrate/field"
	"github.com/pthm-cable/substrate/scheduler"
	"github.com/pthm-cable/substrate/world"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Fields    FieldsConfig    `yaml:"fields"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Camera    CameraConfig    `yaml:"camera"`
	Emitters  []EmitterConfig `yaml:"emitters"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Store     StoreConfig     `yaml:"store"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds chunk geometry and lifecycle timing.
type WorldConfig struct {
	Seed             int64 `yaml:"seed"`
	ChunkSide        int   `yaml:"chunk_side"`
	ActivationRadius int   `yaml:"activation_radius"` // chunks kept active around the focus
	HyperRadius      int   `yaml:"hyper_radius"`      // chunks strictly closer than this run growth
	SleepTimeoutMS   int   `yaml:"sleep_timeout_ms"`
	EvictAfterMS     int   `yaml:"evict_after_ms"` // 0 disables eviction
	Width            int   `yaml:"width"`          // in chunks, 0 = unbounded
	Height           int   `yaml:"height"`
}

// FieldsConfig holds per-quantity dynamics and seeding.
type FieldsConfig struct {
	Food   QuantityConfig `yaml:"food"`
	Water  QuantityConfig `yaml:"water"`
	Trails QuantityConfig `yaml:"trails"`
}

// QuantityConfig is one quantity's field dynamics plus how it is seeded.
type QuantityConfig struct {
	field.Config `yaml:",inline"`

	Noise NoiseConfig   `yaml:"noise"`
	Oases []field.Oasis `yaml:"oases"` // world-space cells
}

// NoiseConfig seeds a quantity with world-continuous noise. Amplitude 0 disables it.
type NoiseConfig struct {
	Amplitude  float64 `yaml:"amplitude"`
	Frequency  float64 `yaml:"frequency"`
	SeedOffset int64   `yaml:"seed_offset"` // added to world.seed
}

// SchedulerConfig holds tier cadences and soft budgets.
type SchedulerConfig struct {
	MediumInterval uint64 `yaml:"medium_interval"` // ticks
	SlowInterval   uint64 `yaml:"slow_interval"`   // ticks
	FastBudgetUS   int    `yaml:"fast_budget_us"`
	MediumBudgetUS int    `yaml:"medium_budget_us"`
	SlowBudgetUS   int    `yaml:"slow_budget_us"`
}

// CameraConfig sets the focus driver's start position and drift, in cells.
type CameraConfig struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	VelX float64 `yaml:"vel_x"` // cells per tick
	VelY float64 `yaml:"vel_y"`
}

// EmitterConfig places a point source at startup.
type EmitterConfig struct {
	Quantity string  `yaml:"quantity"`
	X        int     `yaml:"x"`
	Y        int     `yaml:"y"`
	Rate     float64 `yaml:"rate"`      // per tick, negative drains
	TTLTicks int     `yaml:"ttl_ticks"` // 0 = forever
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // scheduler steps per perf aggregate
}

// StoreConfig configures the backing store for evicted chunks.
type StoreConfig struct {
	Path    string `yaml:"path"`     // empty = no store
	WorldID string `yaml:"world_id"` // empty = fresh id per run
}

// Emitter is an EmitterConfig with its quantity resolved.
type Emitter struct {
	Quantity world.Quantity
	X, Y     int
	Rate     float64
	TTL      int
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	World     world.Config
	Fields    [world.NumQuantities]field.Config
	Scheduler scheduler.Config
	Emitters  []Emitter
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Refresh(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Refresh recomputes derived values and validates them. Call it after
// changing fields in code, e.g. applying command line overrides.
func (c *Config) Refresh() error {
	if err := c.computeDerived(); err != nil {
		return err
	}
	return c.Validate()
}

// Quantity returns the settings for q.
func (c *Config) Quantity(q world.Quantity) QuantityConfig {
	switch q {
	case world.Water:
		return c.Fields.Water
	case world.Trails:
		return c.Fields.Trails
	}
	return c.Fields.Food
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	c.Derived.World = world.Config{
		ChunkSide:        c.World.ChunkSide,
		ActivationRadius: c.World.ActivationRadius,
		HyperRadius:      c.World.HyperRadius,
		SleepTimeout:     time.Duration(c.World.SleepTimeoutMS) * time.Millisecond,
		EvictAfter:       time.Duration(c.World.EvictAfterMS) * time.Millisecond,
		Width:            c.World.Width,
		Height:           c.World.Height,
	}

	for _, q := range world.Quantities {
		c.Derived.Fields[q] = c.Quantity(q).Config
	}

	c.Derived.Scheduler = scheduler.Config{
		MediumInterval: c.Scheduler.MediumInterval,
		SlowInterval:   c.Scheduler.SlowInterval,
		Budgets: [scheduler.NumRates]time.Duration{
			scheduler.Fast:   time.Duration(c.Scheduler.FastBudgetUS) * time.Microsecond,
			scheduler.Medium: time.Duration(c.Scheduler.MediumBudgetUS) * time.Microsecond,
			scheduler.Slow:   time.Duration(c.Scheduler.SlowBudgetUS) * time.Microsecond,
		},
	}

	c.Derived.Emitters = c.Derived.Emitters[:0]
	for i, e := range c.Emitters {
		q, err := world.ParseQuantity(e.Quantity)
		if err != nil {
			return fmt.Errorf("%w: emitters[%d]: %v", ErrInvalid, i, err)
		}
		c.Derived.Emitters = append(c.Derived.Emitters, Emitter{
			Quantity: q, X: e.X, Y: e.Y, Rate: e.Rate, TTL: e.TTLTicks,
		})
	}
	return nil
}

// Validate checks the derived settings against each component's rules.
func (c *Config) Validate() error {
	if err := c.Derived.World.Validate(); err != nil {
		return fmt.Errorf("%w: world: %w", ErrInvalid, err)
	}
	for _, q := range world.Quantities {
		if err := c.Derived.Fields[q].Validate(); err != nil {
			return fmt.Errorf("%w: fields.%s: %w", ErrInvalid, q, err)
		}
		if n := c.Quantity(q).Noise; n.Amplitude < 0 || (n.Amplitude > 0 && n.Frequency <= 0) {
			return fmt.Errorf("%w: fields.%s.noise: amplitude %v frequency %v", ErrInvalid, q, n.Amplitude, n.Frequency)
		}
	}
	if err := c.Derived.Scheduler.Validate(); err != nil {
		return fmt.Errorf("%w: scheduler: %w", ErrInvalid, err)
	}
	for i, e := range c.Emitters {
		if e.TTLTicks < 0 {
			return fmt.Errorf("%w: emitters[%d]: negative ttl_ticks", ErrInvalid, i)
		}
		if math.IsNaN(e.Rate) || math.IsInf(e.Rate, 0) {
			return fmt.Errorf("%w: emitters[%d]: rate %v is not finite", ErrInvalid, i, e.Rate)
		}
	}
	if c.Telemetry.PerfWindow < 1 {
		return fmt.Errorf("%w: telemetry.perf_window must be at least 1", ErrInvalid)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
