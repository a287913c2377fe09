package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/v2drift/grammar"
	"github.com/pthm-cable/v2drift/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in a database",
		Long: `List runs recorded with "run --db", most recent first.

Examples:
  v2drift runs --db runs.db
  v2drift runs --db runs.db --finals --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			limit, _ := cmd.Flags().GetInt("limit")
			withFinals, _ := cmd.Flags().GetBool("finals")
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}

			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %4s  %20s  %12s  %8s  %7s  %s\n",
				"RUN ID", "RUN", "SEED", "INTERACTIONS", "DEATHS", "ALERTS", "SAVED")
			for _, r := range runs {
				saved := r.SavedAt
				if t, err := time.Parse(time.RFC3339, r.SavedAt); err == nil {
					saved = humanize.Time(t)
				}
				fmt.Fprintf(out, "%-36s  %4d  %20d  %12s  %8s  %7s  %s\n",
					r.RunID, r.Run+1, r.Seed,
					humanize.Comma(int64(r.Interactions)),
					humanize.Comma(int64(r.Deaths)),
					humanize.Comma(int64(r.Alerts)),
					saved)
				if withFinals {
					if err := printFinals(out, db, r.RunID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite database written by run --db")
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")
	cmd.Flags().Bool("finals", false, "Show final V2 fractions per location")
	return cmd
}

func printFinals(out io.Writer, db *store.DB, runID string) error {
	finals, err := db.Finals(runID)
	if err != nil {
		return fmt.Errorf("loading finals: %w", err)
	}
	for _, f := range finals {
		fmt.Fprintf(out, "    location %d  %-7s  %.4f  (%s utterances)\n",
			f.Location, f.VariantOf(), f.V2Fraction, humanize.Comma(int64(f.Utterances)))
	}
	return nil
}

func newCorpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus <celt|viking|path.csv>",
		Short: "Show the V2 fractions of a historical corpus",
		Long: `Print the per-feature V2 fractions of a built-in corpus or a corpus CSV file.
With --export the corpus is written out as CSV, which is a convenient starting
point for a custom corpus.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := openCorpus(args[0])
			if err != nil {
				return err
			}

			export, _ := cmd.Flags().GetString("export")
			if export != "" {
				if err := grammar.WriteCorpus(export, table); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-6s  %8s  %8s  %8s\n", "slice", "V2", "non-V2", "fraction")
			slices := []struct {
				name string
				s    grammar.Slice
			}{
				{"Vf", table.Vf()},
				{"Aux", table.Aux()},
				{"THEN", table.Then()},
				{"AdvO", table.AdvO()},
				{"total", table.Total()},
			}
			for _, row := range slices {
				fmt.Fprintf(out, "%-6s  %8d  %8d  %8.4f\n", row.name, row.s.V2, row.s.NonV2, row.s.V2Fraction())
			}
			return nil
		},
	}
	cmd.Flags().String("export", "", "Write the corpus to this CSV path")
	return cmd
}

func openCorpus(arg string) (*grammar.FrequencyTable, error) {
	switch arg {
	case "celt", "viking":
		return grammar.BuiltinCorpus(arg)
	default:
		return grammar.ReadCorpus(arg)
	}
}
