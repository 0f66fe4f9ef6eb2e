package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/substrate/scheduler"
	"github.com/pthm-cable/substrate/world"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	w := cfg.Derived.World
	if w.ChunkSide != 64 || w.ActivationRadius != 3 || w.HyperRadius != 1 {
		t.Errorf("world = %+v", w)
	}
	if w.SleepTimeout != 30*time.Second {
		t.Errorf("sleep timeout = %v, want 30s", w.SleepTimeout)
	}
	if w.Bounded() {
		t.Error("default world should be unbounded")
	}

	if got := cfg.Derived.Fields[world.Food].GrowthRate; got <= 0 {
		t.Errorf("food growth rate = %v, want positive", got)
	}
	if got := cfg.Derived.Fields[world.Water].GrowthRate; got != 0 {
		t.Errorf("water growth rate = %v, want 0", got)
	}

	s := cfg.Derived.Scheduler
	if s.MediumInterval != 10 || s.SlowInterval != 100 {
		t.Errorf("scheduler intervals = %d/%d", s.MediumInterval, s.SlowInterval)
	}
	if s.Budgets[scheduler.Fast] != 4*time.Millisecond {
		t.Errorf("fast budget = %v, want 4ms", s.Budgets[scheduler.Fast])
	}

	if len(cfg.Derived.Emitters) != len(cfg.Emitters) {
		t.Errorf("derived %d emitters from %d", len(cfg.Derived.Emitters), len(cfg.Emitters))
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
world:
  chunk_side: 32
  width: 4
  height: 2
fields:
  trails:
    decay_rate: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Derived.World.ChunkSide != 32 || !cfg.Derived.World.Bounded() {
		t.Errorf("world = %+v", cfg.Derived.World)
	}
	if cfg.Derived.World.ActivationRadius != 3 {
		t.Errorf("activation radius lost its default: %d", cfg.Derived.World.ActivationRadius)
	}
	trails := cfg.Derived.Fields[world.Trails]
	if trails.DecayRate != 0.5 || trails.DiffusionRate != 0.1 {
		t.Errorf("trails = %+v, want decay 0.5 over default diffusion", trails)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"hyper beyond activation", "world:\n  hyper_radius: 5\n"},
		{"growth overshoot", "fields:\n  food:\n    growth_rate: 1.5\n"},
		{"slow below medium", "scheduler:\n  slow_interval: 5\n"},
		{"unknown emitter quantity", "emitters:\n  - { quantity: lava, x: 0, y: 0, rate: 1 }\n"},
		{"noise without frequency", "fields:\n  trails:\n    noise:\n      amplitude: 1\n"},
		{"zero perf window", "telemetry:\n  perf_window: 0\n"},
		{"nan emitter rate", "emitters:\n  - { quantity: food, x: 0, y: 0, rate: .nan }\n"},
		{"infinite emitter rate", "emitters:\n  - { quantity: water, x: 0, y: 0, rate: -.inf }\n"},
		{"nan decay", "fields:\n  water:\n    decay_rate: .nan\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRefreshAppliesOverrides(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.World.SleepTimeoutMS = 500
	if err := cfg.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if cfg.Derived.World.SleepTimeout != 500*time.Millisecond {
		t.Errorf("sleep timeout = %v, want 500ms", cfg.Derived.World.SleepTimeout)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.World.Seed = 7
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if back.World.Seed != 7 {
		t.Errorf("seed = %d, want 7", back.World.Seed)
	}
	if len(back.Fields.Food.Oases) != len(cfg.Fields.Food.Oases) {
		t.Errorf("food oases = %d, want %d", len(back.Fields.Food.Oases), len(cfg.Fields.Food.Oases))
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() {
		global = saved
		if recover() == nil {
			t.Error("Cfg() did not panic before Init")
		}
	}()
	Cfg()
}
