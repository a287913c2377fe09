package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/sim"
	"github.com/pthm-cable/v2drift/store"
	"github.com/pthm-cable/v2drift/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment",
		Long: `Run N independent simulations with the loaded parameters and print the
fraction of V2 sentences per location as they progress.

Examples:
  v2drift run                               # defaults, output under ./out
  v2drift run --config exp.yaml --seed 42   # reproducible run
  v2drift run --workers 4 --db runs.db      # parallel runs, stored in SQLite`,
		RunE: runExperiment,
	}

	cmd.Flags().Int64("seed", 0, "RNG seed (0 = config value, or time-based if that is 0 too)")
	cmd.Flags().Int("runs", 0, "Number of runs (0 = use config)")
	cmd.Flags().Int("interactions", -1, "Interactions per run (-1 = use config)")
	cmd.Flags().Int("workers", 0, "Runs executed in parallel (0 = use config)")
	cmd.Flags().String("output-dir", "out", "Parent directory for timestamped CSV output (empty = no files)")
	cmd.Flags().String("db", "", "SQLite database to record runs in (empty = disabled)")
	cmd.Flags().Bool("log-stats", false, "Output window stats via slog")
	cmd.Flags().Bool("perf", false, "Collect per-phase timing into perf.csv")
	return cmd
}

// loadParams loads the --config file and applies command line overrides.
func loadParams(cmd *cobra.Command) (*config.Parameters, error) {
	path, _ := cmd.Flags().GetString("config")
	p, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Lookup("seed") != nil {
		if seed, _ := flags.GetInt64("seed"); seed != 0 {
			p.Seed = seed
		}
	}
	if flags.Lookup("runs") != nil {
		if runs, _ := flags.GetInt("runs"); runs > 0 {
			p.Runs = runs
		}
	}
	if flags.Lookup("interactions") != nil {
		if n, _ := flags.GetInt("interactions"); n >= 0 {
			p.Interactions = n
		}
	}
	if flags.Lookup("workers") != nil {
		if w, _ := flags.GetInt("workers"); w > 0 {
			p.Workers = w
		}
	}

	p.Recompute()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	p, err := loadParams(cmd)
	if err != nil {
		return err
	}
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}

	rc, err := sim.LoadRunContext(p)
	if err != nil {
		return err
	}

	outputParent, _ := cmd.Flags().GetString("output-dir")
	dbPath, _ := cmd.Flags().GetString("db")
	logStats, _ := cmd.Flags().GetBool("log-stats")
	perf, _ := cmd.Flags().GetBool("perf")

	var outputDir string
	if outputParent != "" {
		outputDir = filepath.Join(outputParent, "run__"+time.Now().Format("2006_01_02-15_04_05"))
	}
	output, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(p); err != nil {
		return err
	}

	// Open the store before running so a bad path fails fast.
	var db *store.DB
	if dbPath != "" {
		db, err = store.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	experiment := uuid.NewString()
	slog.Info("starting experiment",
		"experiment", experiment,
		"seed", p.Seed,
		"runs", p.Runs,
		"workers", p.Workers,
		"interactions", humanize.Comma(int64(p.Interactions)),
		"celt", p.Derived.CeltSize,
		"viking", p.Derived.VikingSize,
		"output_dir", output.Dir(),
	)

	start := time.Now()
	results, err := sim.RunExperiment(ctx, p, rc, sim.ExperimentOptions{
		Output:   output,
		LogStats: logStats,
		Perf:     perf,
	})
	if err != nil {
		return err
	}

	if db != nil {
		params, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		if err := db.SaveResults(experiment, results, params); err != nil {
			return fmt.Errorf("saving results: %w", err)
		}
	}

	total := 0
	for _, r := range results {
		total += r.Interactions
	}
	slog.Info("experiment finished",
		"experiment", experiment,
		"runs", len(results),
		"interactions", humanize.Comma(int64(total)),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a parameter file and print the effective parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadParams(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n# celt agents: %d, viking agents: %d\n",
				data, p.Derived.CeltSize, p.Derived.VikingSize)
			return nil
		},
	}
}
