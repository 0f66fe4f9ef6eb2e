// Package telemetry aggregates scheduler timing and chunk statistics and
// writes them to CSV.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/substrate/world"
)

// QuantityStats summarizes one quantity over the active chunks.
type QuantityStats struct {
	Total float64
	Mean  float64 // per cell
	Max   float64

	// Distribution of per-chunk means.
	ChunkStd float64
	ChunkP10 float64
	ChunkP50 float64
	ChunkP90 float64
}

// WorldStats is a snapshot of the chunk manager.
type WorldStats struct {
	RunID string `csv:"run_id"`
	Tick  uint64 `csv:"tick"`

	Chunks    int `csv:"chunks"`
	Dormant   int `csv:"dormant"`
	Active    int `csv:"active"`
	Hyper     int `csv:"hyper"`
	Lingering int `csv:"lingering"`
	Evicted   int `csv:"evicted"`
	Restored  int `csv:"restored"`

	FocusCX int `csv:"focus_cx"`
	FocusCY int `csv:"focus_cy"`

	Emitters int `csv:"emitters"`

	FoodTotal  float64 `csv:"food_total"`
	FoodMean   float64 `csv:"food_mean"`
	FoodMax    float64 `csv:"food_max"`
	FoodP90    float64 `csv:"food_chunk_p90"`
	WaterTotal float64 `csv:"water_total"`
	WaterMean  float64 `csv:"water_mean"`
	WaterMax   float64 `csv:"water_max"`
	WaterP90   float64 `csv:"water_chunk_p90"`
	TrailTotal float64 `csv:"trails_total"`
	TrailMean  float64 `csv:"trails_mean"`
	TrailMax   float64 `csv:"trails_max"`
	TrailP90   float64 `csv:"trails_chunk_p90"`

	Quantities [world.NumQuantities]QuantityStats `csv:"-"`
}

// ComputeWorldStats gathers chunk counts and per-quantity aggregates over
// the manager's active chunks.
func ComputeWorldStats(tick uint64, m *world.Manager) WorldStats {
	cs := m.Stats()
	s := WorldStats{
		Tick:      tick,
		Chunks:    cs.Chunks,
		Dormant:   cs.Dormant,
		Active:    cs.Active,
		Hyper:     cs.Hyper,
		Lingering: cs.Lingering,
		Evicted:   cs.Evicted,
		Restored:  cs.Restored,
	}
	if fk, ok := m.Focus(); ok {
		s.FocusCX, s.FocusCY = fk.CX, fk.CY
	}

	active := m.ActiveChunks()
	means := make([]float64, len(active))
	for _, q := range world.Quantities {
		var qs QuantityStats
		var cells int
		for i, c := range active {
			f := c.Field(q)
			sum := f.Sum()
			qs.Total += sum
			cells += f.Len()
			if mx := f.Max(); i == 0 || mx > qs.Max {
				qs.Max = mx
			}
			means[i] = sum / float64(f.Len())
		}
		if cells > 0 {
			qs.Mean = qs.Total / float64(cells)
		}
		qs.ChunkStd, qs.ChunkP10, qs.ChunkP50, qs.ChunkP90 = ComputeDistribution(means)
		s.Quantities[q] = qs
	}

	food, water, trails := s.Quantities[world.Food], s.Quantities[world.Water], s.Quantities[world.Trails]
	s.FoodTotal, s.FoodMean, s.FoodMax, s.FoodP90 = food.Total, food.Mean, food.Max, food.ChunkP90
	s.WaterTotal, s.WaterMean, s.WaterMax, s.WaterP90 = water.Total, water.Mean, water.Max, water.ChunkP90
	s.TrailTotal, s.TrailMean, s.TrailMax, s.TrailP90 = trails.Total, trails.Mean, trails.Max, trails.ChunkP90
	return s
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution returns the population standard deviation and the
// 10th/50th/90th percentiles of values. values is not modified.
func ComputeDistribution(values []float64) (std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}

	_, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)
	return std, p10, p50, p90
}

// GrandTotal is the sum of every quantity's total.
func (s WorldStats) GrandTotal() float64 {
	totals := make([]float64, len(s.Quantities))
	for i, q := range s.Quantities {
		totals[i] = q.Total
	}
	return floats.Sum(totals)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WorldStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Uint64("tick", s.Tick),
		slog.Int("chunks", s.Chunks),
		slog.Int("dormant", s.Dormant),
		slog.Int("active", s.Active),
		slog.Int("hyper", s.Hyper),
		slog.Int("lingering", s.Lingering),
		slog.Int("evicted", s.Evicted),
		slog.Int("restored", s.Restored),
		slog.Int("emitters", s.Emitters),
	}
	for _, q := range world.Quantities {
		qs := s.Quantities[q]
		name := q.String()
		attrs = append(attrs,
			slog.Float64(name+"_total", qs.Total),
			slog.Float64(name+"_mean", qs.Mean),
			slog.Float64(name+"_max", qs.Max),
		)
	}
	return slog.GroupValue(attrs...)
}

// LogStats logs the world stats using slog.
func (s WorldStats) LogStats() {
	slog.Info("stats", "world", s)
}
