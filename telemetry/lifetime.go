package telemetry

import "github.com/pthm-cable/v2drift/components"

// LifetimeStats tracks per-agent statistics over its lifetime.
type LifetimeStats struct {
	Variant  components.Variant
	Location int
	BornAt   int // interaction the agent was created after; 0 for founders

	Alerts   int // productions shielded by the protection pulse
	Removals int // exemplars depleted by production
}

// DeathRecord is one replaced agent, written to deaths.csv.
type DeathRecord struct {
	RunID     string             `csv:"run_id"`
	Run       int                `csv:"run"`
	AgentID   uint32             `csv:"agent"`
	Variant   components.Variant `csv:"variant"`
	Location  int                `csv:"location"`
	Cause     DeathCause         `csv:"cause"`
	BornAt    int                `csv:"born_at"`
	DiedAt    int                `csv:"died_at"`
	Spoken    int                `csv:"spoken"`
	Heard     int                `csv:"heard"`
	Alerts    int                `csv:"alerts"`
	Removals  int                `csv:"removals"`
	Exemplars int                `csv:"exemplars"`
	Doubt     float64            `csv:"doubt"`
}

// LifetimeTracker manages per-agent lifetime statistics.
type LifetimeTracker struct {
	runID string
	run   int
	stats map[uint32]*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker(runID string, run int) *LifetimeTracker {
	return &LifetimeTracker{
		runID: runID,
		run:   run,
		stats: make(map[uint32]*LifetimeStats),
	}
}

// Register creates lifetime stats for a new agent.
func (lt *LifetimeTracker) Register(id uint32, o components.Origin) {
	lt.stats[id] = &LifetimeStats{
		Variant:  o.Variant,
		Location: o.Location,
		BornAt:   o.BornAt,
	}
}

// Get returns the lifetime stats for an agent, or nil if not found.
func (lt *LifetimeTracker) Get(id uint32) *LifetimeStats {
	return lt.stats[id]
}

// RecordSpeech counts the memory effect of one production.
func (lt *LifetimeTracker) RecordSpeech(id uint32, alert, removed bool) {
	if s := lt.stats[id]; s != nil {
		if alert {
			s.Alerts++
		}
		if removed {
			s.Removals++
		}
	}
}

// Die removes an agent's stats and returns its death record.
func (lt *LifetimeTracker) Die(id uint32, cause DeathCause, diedAt int, g components.Grammar, act components.Activity) DeathRecord {
	rec := DeathRecord{
		RunID:     lt.runID,
		Run:       lt.run,
		AgentID:   id,
		Cause:     cause,
		DiedAt:    diedAt,
		Spoken:    act.Spoken,
		Heard:     act.Heard,
		Exemplars: g.Exemplars.Len(),
		Doubt:     g.Doubt,
	}
	if s := lt.stats[id]; s != nil {
		rec.Variant = s.Variant
		rec.Location = s.Location
		rec.BornAt = s.BornAt
		rec.Alerts = s.Alerts
		rec.Removals = s.Removals
	}
	delete(lt.stats, id)
	return rec
}

// Count returns the number of tracked agents.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}
