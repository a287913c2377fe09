package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/v2drift/grammar"
	"github.com/pthm-cable/v2drift/sim"
)

func TestMain(m *testing.M) {
	sim.SetLogWriter(io.Discard)
	os.Exit(m.Run())
}

// newTestRootCmd creates a root command with persistent flags for testing subcommands.
func newTestRootCmd(sub *cobra.Command) *cobra.Command {
	rootCmd := &cobra.Command{Use: "v2drift", SilenceUsage: true, SilenceErrors: true}
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml")
	rootCmd.AddCommand(sub)
	return rootCmd
}

func execute(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	root := newTestRootCmd(sub)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	cfg := `runs: 2
workers: 2
seed: 7
locations: 2
population:
  celt: [4, 4]
  viking: [0, 4]
interactions: 60
print_every: 20
`
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"debug", "text", false},
		{"WARN", "JSON", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			err := setupLogging(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("setupLogging(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCmd(t *testing.T) {
	path := writeConfig(t, t.TempDir())
	out, err := execute(t, newValidateCmd(), "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "celt agents: 8, viking agents: 4") {
		t.Errorf("validate output missing derived sizes:\n%s", out)
	}
}

func TestValidateCmdRejects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("locations: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, newValidateCmd(), "validate", "--config", path); err == nil {
		t.Error("expected an error for mismatched population lists")
	}
}

func TestCorpusCmdExport(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "celt.csv")
	out, err := execute(t, newCorpusCmd(), "corpus", "celt", "--export", dst)
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	if !strings.Contains(out, "total") || !strings.Contains(out, "0.6450") {
		t.Errorf("corpus output missing total fraction:\n%s", out)
	}

	exported, err := grammar.ReadCorpus(dst)
	if err != nil {
		t.Fatalf("reading exported corpus: %v", err)
	}
	builtin, _ := grammar.BuiltinCorpus("celt")
	if exported.Total() != builtin.Total() {
		t.Errorf("exported total = %+v, want %+v", exported.Total(), builtin.Total())
	}
}

func TestRunAndListRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	dbPath := filepath.Join(dir, "runs.db")

	if _, err := execute(t, newRunCmd(), "run",
		"--config", path,
		"--output-dir", filepath.Join(dir, "out"),
		"--db", dbPath,
	); err != nil {
		t.Fatalf("run: %v", err)
	}

	outDirs, err := filepath.Glob(filepath.Join(dir, "out", "run__*"))
	if err != nil || len(outDirs) != 1 {
		t.Fatalf("expected one timestamped output dir, got %v (%v)", outDirs, err)
	}
	for _, name := range []string{"params.yaml", "series.csv", "telemetry.csv", "summary.csv"} {
		if _, err := os.Stat(filepath.Join(outDirs[0], name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	out, err := execute(t, newRunsCmd(), "runs", "--db", dbPath, "--finals")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "\n    location") {
		t.Errorf("runs --finals printed no final fractions:\n%s", out)
	}
	if !strings.Contains(out, "RUN ID") {
		t.Errorf("runs output missing header:\n%s", out)
	}
}

func TestRunsCmdRequiresDB(t *testing.T) {
	if _, err := execute(t, newRunsCmd(), "runs"); err == nil {
		t.Error("expected an error without --db")
	}
}
