package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/pthm-cable/substrate/config"
	"github.com/pthm-cable/substrate/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output world and perf stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	storePath := flag.String("store", "", "SQLite file for evicted chunks (overrides store.path)")
	seed := flag.Int64("seed", 0, "Noise seed (0 = world.seed from config, -1 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	verbose := flag.Bool("v", false, "Debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed < 0 {
		rngSeed = time.Now().UnixNano()
	}

	g, err := game.NewGameWithOptions(game.Options{
		Seed:      rngSeed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		StorePath: *storePath,
	})
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer g.Unload()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	slog.Info("starting headless simulation",
		"seed", rngSeed,
		"max_ticks", *maxTicks,
		"config", *configPath,
		"output_dir", *outputDir,
	)

	for {
		g.UpdateHeadless()

		if *maxTicks > 0 && int(g.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", g.Tick(), "world", g.Manager().Stats())
			return
		}

		select {
		case <-interrupt:
			slog.Info("interrupted", "tick", g.Tick())
			return
		default:
		}
	}
}
