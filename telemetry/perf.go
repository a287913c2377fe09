package telemetry

import (
	"log/slog"
	"time"
)

// Phase is one step of an interaction.
type Phase int

const (
	PhasePairing Phase = iota
	PhaseSpeak
	PhaseHear
	PhaseBookkeeping
	PhaseDeath

	numPhases
)

// phaseNone marks that no phase is being timed.
const phaseNone Phase = -1

func (p Phase) String() string {
	switch p {
	case PhasePairing:
		return "pairing"
	case PhaseSpeak:
		return "speak"
	case PhaseHear:
		return "hear"
	case PhaseBookkeeping:
		return "bookkeeping"
	case PhaseDeath:
		return "death"
	default:
		return "unknown"
	}
}

// PhaseTimes holds one duration per phase.
type PhaseTimes [numPhases]time.Duration

// PerfCollector tracks interaction timing over a rolling window. A nil
// collector is valid and records nothing.
type PerfCollector struct {
	windowSize  int
	durations   []time.Duration
	phases      []PhaseTimes
	writeIndex  int
	sampleCount int

	current    PhaseTimes
	start      time.Time
	phaseStart time.Time
	lastPhase  Phase
}

// NewPerfCollector creates a collector averaging over windowSize interactions.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 1000
	}
	return &PerfCollector{
		windowSize: windowSize,
		durations:  make([]time.Duration, windowSize),
		phases:     make([]PhaseTimes, windowSize),
		lastPhase:  phaseNone,
	}
}

// StartInteraction begins timing a new interaction.
func (p *PerfCollector) StartInteraction() {
	if p == nil {
		return
	}
	p.start = time.Now()
	p.current = PhaseTimes{}
	p.lastPhase = phaseNone
}

// StartPhase ends the running phase and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.phaseStart = now
	p.lastPhase = phase
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.lastPhase != phaseNone {
		p.current[p.lastPhase] += now.Sub(p.phaseStart)
	}
}

// EndInteraction finishes timing the current interaction and records it.
func (p *PerfCollector) EndInteraction() {
	if p == nil {
		return
	}
	now := time.Now()
	p.closePhase(now)
	p.lastPhase = phaseNone

	p.durations[p.writeIndex] = now.Sub(p.start)
	p.phases[p.writeIndex] = p.current
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated timing over the window.
type PerfStats struct {
	Samples     int
	AvgDuration time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration

	PhaseAvg PhaseTimes
	PhasePct [numPhases]float64 // share of the average interaction, in percent

	InteractionsPerSecond float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil || p.sampleCount == 0 {
		return PerfStats{}
	}

	var total, lo, hi time.Duration
	var phaseSum PhaseTimes
	for i := 0; i < p.sampleCount; i++ {
		d := p.durations[i]
		total += d
		if i == 0 || d < lo {
			lo = d
		}
		hi = max(hi, d)
		for ph, dur := range p.phases[i] {
			phaseSum[ph] += dur
		}
	}

	n := time.Duration(p.sampleCount)
	stats := PerfStats{
		Samples:     p.sampleCount,
		AvgDuration: total / n,
		MinDuration: lo,
		MaxDuration: hi,
	}
	for ph := range phaseSum {
		stats.PhaseAvg[ph] = phaseSum[ph] / n
		if stats.AvgDuration > 0 {
			stats.PhasePct[ph] = float64(stats.PhaseAvg[ph]) / float64(stats.AvgDuration) * 100
		}
	}
	if stats.AvgDuration > 0 {
		stats.InteractionsPerSecond = float64(time.Second) / float64(stats.AvgDuration)
	}
	return stats
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_ns", s.AvgDuration.Nanoseconds()),
		slog.Int64("max_ns", s.MaxDuration.Nanoseconds()),
		slog.Float64("per_sec", s.InteractionsPerSecond),
	}
	for ph := PhasePairing; ph < numPhases; ph++ {
		attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhasePct[ph]))
	}
	return slog.GroupValue(attrs...)
}

// PerfRow is one line of perf.csv.
type PerfRow struct {
	RunID          string  `csv:"run_id"`
	WindowEnd      int     `csv:"window_end"`
	Samples        int     `csv:"samples"`
	AvgNS          int64   `csv:"avg_ns"`
	MinNS          int64   `csv:"min_ns"`
	MaxNS          int64   `csv:"max_ns"`
	PerSec         float64 `csv:"per_sec"`
	PairingPct     float64 `csv:"pairing_pct"`
	SpeakPct       float64 `csv:"speak_pct"`
	HearPct        float64 `csv:"hear_pct"`
	BookkeepingPct float64 `csv:"bookkeeping_pct"`
	DeathPct       float64 `csv:"death_pct"`
}

// ToCSV flattens the stats of the window ending at windowEnd.
func (s PerfStats) ToCSV(runID string, windowEnd int) PerfRow {
	return PerfRow{
		RunID:          runID,
		WindowEnd:      windowEnd,
		Samples:        s.Samples,
		AvgNS:          s.AvgDuration.Nanoseconds(),
		MinNS:          s.MinDuration.Nanoseconds(),
		MaxNS:          s.MaxDuration.Nanoseconds(),
		PerSec:         s.InteractionsPerSecond,
		PairingPct:     s.PhasePct[PhasePairing],
		SpeakPct:       s.PhasePct[PhaseSpeak],
		HearPct:        s.PhasePct[PhaseHear],
		BookkeepingPct: s.PhasePct[PhaseBookkeeping],
		DeathPct:       s.PhasePct[PhaseDeath],
	}
}
