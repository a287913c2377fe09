package sim

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/telemetry"
)

// ExperimentOptions configures a multi-run experiment.
type ExperimentOptions struct {
	Output   *telemetry.OutputManager
	LogStats bool
	Perf     bool
}

// RunExperiment performs p.Runs independent runs, at most p.Workers at a
// time. Run i is seeded with p.Seed+i. Results are returned in run order. The
// first failing run cancels the others.
func RunExperiment(ctx context.Context, p *config.Parameters, rc RunContext, opts ExperimentOptions) ([]Result, error) {
	Logf("Start Experiment of %d Runs", p.Runs)

	results := make([]Result, p.Runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)

	for i := 0; i < p.Runs; i++ {
		g.Go(func() error {
			s, err := New(p, rc, Options{
				Seed:     p.Seed + int64(i),
				Run:      i,
				Runs:     p.Runs,
				Output:   opts.Output,
				LogStats: opts.LogStats,
				Perf:     opts.Perf,
			})
			if err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
			res, err := s.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := Summarize(results)
	if err := opts.Output.WriteSummary(summary); err != nil {
		return results, err
	}
	logSummary(summary)
	return results, nil
}

// Summarize aggregates final fractions across runs.
func Summarize(results []Result) []telemetry.SummaryRow {
	var finals []telemetry.FinalFraction
	for _, r := range results {
		finals = append(finals, r.Finals...)
	}
	return telemetry.Summarize(finals)
}

// logSummary prints the closing table of final fractions.
func logSummary(rows []telemetry.SummaryRow) {
	Logf("\nFinal fraction of V2 sentences")
	Logf("   loc  variant     mean      std  runs")
	for _, r := range rows {
		Logf("%6d  %-7s  %.4f   %.4f  %4d", r.Location, r.Variant, r.Mean, r.Std, r.Runs)
		slog.Debug("summary", "location", r.Location, "variant", r.Variant.String(), "mean", r.Mean, "std", r.Std)
	}
	Logf("FINISHED")
}
