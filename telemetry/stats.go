package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/v2drift/components"
)

// WindowStats holds aggregated statistics for one reporting window.
type WindowStats struct {
	RunID       string `csv:"run_id"`
	Run         int    `csv:"run"`
	WindowStart int    `csv:"-"`
	WindowEnd   int    `csv:"window_end"`

	// Population sizes at window end
	CeltCount   int `csv:"celt"`
	VikingCount int `csv:"viking"`

	// Pairing
	SameInteractions  int `csv:"same"`
	CrossInteractions int `csv:"cross"`
	PairingRejections int `csv:"pairing_rejections"`

	// Production
	V2Produced int     `csv:"v2_produced"`
	V2Rate     float64 `csv:"v2_rate"`
	Alerts     int     `csv:"alerts"`
	Removals   int     `csv:"removals"`

	// Deaths during window
	CeltExhausted   int `csv:"celt_exhausted"`
	VikingExhausted int `csv:"viking_exhausted"`
	CeltAged        int `csv:"celt_aged"`
	VikingAged      int `csv:"viking_aged"`

	// Doubt distribution (sampled at window end)
	CeltDoubtMean   float64 `csv:"celt_doubt_mean"`
	CeltDoubtStd    float64 `csv:"celt_doubt_std"`
	CeltDoubtP10    float64 `csv:"celt_doubt_p10"`
	CeltDoubtP50    float64 `csv:"celt_doubt_p50"`
	CeltDoubtP90    float64 `csv:"celt_doubt_p90"`
	VikingDoubtMean float64 `csv:"viking_doubt_mean"`
	VikingDoubtStd  float64 `csv:"viking_doubt_std"`
	VikingDoubtP10  float64 `csv:"viking_doubt_p10"`
	VikingDoubtP50  float64 `csv:"viking_doubt_p50"`
	VikingDoubtP90  float64 `csv:"viking_doubt_p90"`

	// Mean share of V2 exemplars in agent memories
	CeltMemoryV2   float64 `csv:"celt_memory_v2"`
	VikingMemoryV2 float64 `csv:"viking_memory_v2"`
}

// Distribution summarises a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeDistribution returns mean, sample standard deviation and empirical
// percentiles of values. The standard deviation is 0 for fewer than two values.
func ComputeDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var d Distribution
	if n == 1 {
		d.Mean = sorted[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(sorted, nil)
	}
	d.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	d.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return d
}

// AgentSample holds per-agent values sampled at a window boundary, indexed by
// Variant.Index().
type AgentSample struct {
	Doubt    [2][]float64
	MemoryV2 [2][]float64
}

// Reset empties the sample while keeping its buffers.
func (a *AgentSample) Reset() {
	for i := range a.Doubt {
		a.Doubt[i] = a.Doubt[i][:0]
		a.MemoryV2[i] = a.MemoryV2[i][:0]
	}
}

// Add records one agent.
func (a *AgentSample) Add(v components.Variant, doubt, memoryV2 float64) {
	i := v.Index()
	a.Doubt[i] = append(a.Doubt[i], doubt)
	a.MemoryV2[i] = append(a.MemoryV2[i], memoryV2)
}

func (s *WindowStats) setAgents(sample AgentSample) {
	celt := ComputeDistribution(sample.Doubt[components.Celt.Index()])
	viking := ComputeDistribution(sample.Doubt[components.Viking.Index()])

	s.CeltDoubtMean, s.CeltDoubtStd = celt.Mean, celt.Std
	s.CeltDoubtP10, s.CeltDoubtP50, s.CeltDoubtP90 = celt.P10, celt.P50, celt.P90
	s.VikingDoubtMean, s.VikingDoubtStd = viking.Mean, viking.Std
	s.VikingDoubtP10, s.VikingDoubtP50, s.VikingDoubtP90 = viking.P10, viking.P50, viking.P90

	s.CeltMemoryV2 = mean(sample.MemoryV2[components.Celt.Index()])
	s.VikingMemoryV2 = mean(sample.MemoryV2[components.Viking.Index()])
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int("run", s.Run),
		slog.Int("window_start", s.WindowStart),
		slog.Int("window_end", s.WindowEnd),
		slog.Int("celt", s.CeltCount),
		slog.Int("viking", s.VikingCount),
		slog.Int("same", s.SameInteractions),
		slog.Int("cross", s.CrossInteractions),
		slog.Int("pairing_rejections", s.PairingRejections),
		slog.Int("v2_produced", s.V2Produced),
		slog.Float64("v2_rate", s.V2Rate),
		slog.Int("alerts", s.Alerts),
		slog.Int("removals", s.Removals),
		slog.Int("celt_exhausted", s.CeltExhausted),
		slog.Int("viking_exhausted", s.VikingExhausted),
		slog.Int("celt_aged", s.CeltAged),
		slog.Int("viking_aged", s.VikingAged),
		slog.Float64("celt_doubt_mean", s.CeltDoubtMean),
		slog.Float64("celt_doubt_p50", s.CeltDoubtP50),
		slog.Float64("viking_doubt_mean", s.VikingDoubtMean),
		slog.Float64("viking_doubt_p50", s.VikingDoubtP50),
		slog.Float64("celt_memory_v2", s.CeltMemoryV2),
		slog.Float64("viking_memory_v2", s.VikingMemoryV2),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}

// SummaryRow aggregates the final fraction of one location and variant across runs.
type SummaryRow struct {
	Location int                `csv:"location"`
	Variant  components.Variant `csv:"variant"`
	Runs     int                `csv:"runs"`
	Mean     float64            `csv:"mean"`
	Std      float64            `csv:"std"`
	Min      float64            `csv:"min"`
	Max      float64            `csv:"max"`
}

// Summarize groups final fractions by location and variant. Rows are ordered
// by location, Celt before Viking.
func Summarize(finals []FinalFraction) []SummaryRow {
	type key struct {
		loc int
		v   components.Variant
	}
	groups := make(map[key][]float64)
	var keys []key
	for _, f := range finals {
		k := key{f.Location, f.Variant}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f.V2Fraction)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].loc != keys[j].loc {
			return keys[i].loc < keys[j].loc
		}
		return keys[i].v < keys[j].v
	})

	rows := make([]SummaryRow, 0, len(keys))
	for _, k := range keys {
		d := ComputeDistribution(groups[k])
		vals := groups[k]
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, x := range vals {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		rows = append(rows, SummaryRow{
			Location: k.loc,
			Variant:  k.v,
			Runs:     len(vals),
			Mean:     d.Mean,
			Std:      d.Std,
			Min:      lo,
			Max:      hi,
		})
	}
	return rows
}
