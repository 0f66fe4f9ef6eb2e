package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/pthm-cable/substrate/config"
)

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir       string
	runID     string
	perfFile  *os.File
	worldFile *os.File

	// Track if headers have been written
	perfHeaderWritten  bool
	worldHeaderWritten bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, runID: uuid.NewString()}

	f, err := os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	f, err = os.Create(filepath.Join(dir, "world.csv"))
	if err != nil {
		om.perfFile.Close()
		return nil, fmt.Errorf("creating world.csv: %w", err)
	}
	om.worldFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd uint64) error {
	if om == nil {
		return nil
	}
	row := stats.ToCSV(windowEnd)
	row.RunID = om.runID
	records := []PerfStatsCSV{row}
	if err := appendCSV(om.perfFile, records, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteWorld writes a world stats record to world.csv.
func (om *OutputManager) WriteWorld(stats WorldStats) error {
	if om == nil {
		return nil
	}
	stats.RunID = om.runID
	records := []WorldStats{stats}
	if err := appendCSV(om.worldFile, records, &om.worldHeaderWritten); err != nil {
		return fmt.Errorf("writing world stats: %w", err)
	}
	return nil
}

// appendCSV writes records, including the header only on the first call.
func appendCSV[T any](f *os.File, records []T, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// RunID identifies this run's rows in the CSV files.
func (om *OutputManager) RunID() string {
	if om == nil {
		return ""
	}
	return om.runID
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.perfFile, om.worldFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
