package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/systems"
	"github.com/pthm-cable/v2drift/telemetry"
)

func TestRunExperimentOrderAndSeeds(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Runs = 4
		p.Seed = 100
		p.Interactions = 300
	})
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatal(err)
	}

	run := func(workers int) []Result {
		q := p.Clone()
		q.Workers = workers
		q.Recompute()
		results, err := RunExperiment(context.Background(), q, rc, ExperimentOptions{})
		if err != nil {
			t.Fatalf("RunExperiment(workers=%d) failed: %v", workers, err)
		}
		return results
	}

	parallel := run(3)
	sequential := run(1)

	if len(parallel) != p.Runs {
		t.Fatalf("got %d results, want %d", len(parallel), p.Runs)
	}
	for i, res := range parallel {
		if res.Run != i || res.Seed != p.Seed+int64(i) {
			t.Errorf("result %d: run %d seed %d", i, res.Run, res.Seed)
		}
		if res.Counts != sequential[i].Counts {
			t.Errorf("run %d differs between parallel and sequential execution", i)
		}
		for j := range res.Finals {
			if res.Finals[j].V2Fraction != sequential[i].Finals[j].V2Fraction {
				t.Errorf("run %d final %d differs", i, j)
			}
		}
	}
	if parallel[0].RunID == parallel[1].RunID {
		t.Error("runs share an ID")
	}
}

func TestRunExperimentStopsOnFatalError(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Runs = 3
		p.Workers = 2
		p.InitialUtterances = 1
		p.RemoveExemplars = true
	})
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatal(err)
	}

	// A single exemplar is depleted by the first matching production and
	// the one-exemplar death rule never sees it again.
	_, err = RunExperiment(context.Background(), p, rc, ExperimentOptions{})
	if !errors.Is(err, systems.ErrExemplarsExhausted) {
		t.Errorf("RunExperiment error = %v, want ErrExemplarsExhausted", err)
	}
}

func TestRunExperimentWritesSummary(t *testing.T) {
	p := testParams(t, func(p *config.Parameters) {
		p.Runs = 2
		p.Interactions = 200
	})
	rc, err := LoadRunContext(p)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	om, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	results, err := RunExperiment(context.Background(), p, rc, ExperimentOptions{Output: om})
	if err != nil {
		t.Fatal(err)
	}

	rows := Summarize(results)
	if len(rows) != 2 {
		t.Fatalf("summary has %d rows, want one per variant", len(rows))
	}
	for _, r := range rows {
		if r.Runs != 2 {
			t.Errorf("row %+v aggregates %d runs, want 2", r, r.Runs)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.csv")); err != nil {
		t.Errorf("summary.csv missing: %v", err)
	}
	for i := range results {
		if _, err := os.Stat(filepath.Join(dir, telemetry.SnapshotName(i))); err != nil {
			t.Errorf("snapshot of run %d missing: %v", i, err)
		}
	}
}
