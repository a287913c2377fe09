package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollectorPhaseTracking(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartInteraction()
		pc.StartPhase(PhasePairing)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSpeak)
		time.Sleep(400 * time.Microsecond)
		pc.EndInteraction()
	}

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want 5", stats.Samples)
	}
	if stats.AvgDuration <= 0 {
		t.Error("expected positive average interaction duration")
	}
	if stats.PhaseAvg[PhasePairing] <= 0 || stats.PhaseAvg[PhaseSpeak] <= 0 {
		t.Errorf("phase averages not tracked: %v", stats.PhaseAvg)
	}
	if stats.PhaseAvg[PhaseHear] != 0 {
		t.Errorf("hear phase never ran, got %v", stats.PhaseAvg[PhaseHear])
	}
	if stats.PhasePct[PhasePairing] <= 0 || stats.PhasePct[PhaseSpeak] <= 0 || stats.PhasePct[PhaseHear] != 0 {
		t.Errorf("phase shares = %v, want pairing and speak only", stats.PhasePct)
	}
	if stats.MinDuration > stats.AvgDuration || stats.AvgDuration > stats.MaxDuration {
		t.Errorf("min/avg/max out of order: %v %v %v", stats.MinDuration, stats.AvgDuration, stats.MaxDuration)
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartInteraction()
		pc.StartPhase(PhaseHear)
		time.Sleep(10 * time.Microsecond)
		pc.EndInteraction()
	}

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want 5", stats.Samples)
	}
	if stats.InteractionsPerSecond <= 0 {
		t.Error("expected positive interactions per second")
	}

	row := stats.ToCSV("run", 10)
	if row.WindowEnd != 10 || row.HearPct <= 0 || row.Samples != 5 {
		t.Errorf("ToCSV = %+v, want window 10 with hear share", row)
	}
}

func TestPerfCollectorEmpty(t *testing.T) {
	if stats := NewPerfCollector(10).Stats(); stats.AvgDuration != 0 || stats.Samples != 0 {
		t.Errorf("empty collector stats = %+v", stats)
	}

	// A nil collector disables timing.
	var off *PerfCollector
	off.StartInteraction()
	off.StartPhase(PhaseDeath)
	off.EndInteraction()
	if off.Stats().AvgDuration != 0 {
		t.Error("nil collector reported timing")
	}
}

func TestPhaseString(t *testing.T) {
	want := []string{"pairing", "speak", "hear", "bookkeeping", "death"}
	for ph := PhasePairing; ph < numPhases; ph++ {
		if ph.String() != want[ph] {
			t.Errorf("Phase(%d).String() = %q, want %q", ph, ph.String(), want[ph])
		}
	}
}
