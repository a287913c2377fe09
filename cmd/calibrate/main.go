// Command calibrate searches doubt and growth parameters whose runs end at a
// target fraction of V2 sentences, using Nelder-Mead from gonum/optimize.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/sim"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalRow is one line of calibrate_log.csv.
type evalRow struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	CeltMean       float64 `csv:"celt_mean"`
	VikingMean     float64 `csv:"viking_mean"`
	DoubtStep      float64 `csv:"doubt_step"`
	DoubtInfluence float64 `csv:"doubt_influence"`
	GrowthVf       float64 `csv:"growth_vf"`
	GrowthThen     float64 `csv:"growth_then"`
}

func newEvalRow(eval int, fitness float64, means [2]float64, values []float64) evalRow {
	return evalRow{
		Eval:           eval,
		Fitness:        fitness,
		CeltMean:       means[0],
		VikingMean:     means[1],
		DoubtStep:      values[0],
		DoubtInfluence: values[1],
		GrowthVf:       values[2],
		GrowthThen:     values[3],
	}
}

func main() {
	cmd := &cobra.Command{
		Use:          "calibrate",
		Short:        "Fit doubt and growth parameters to target V2 fractions",
		SilenceUsage: true,
		RunE:         run,
	}
	flags := cmd.Flags()
	flags.String("config", "", "Base config YAML file (empty = use defaults)")
	flags.Float64("target-celt", 0.5, "Target final V2 fraction of Celts (negative = ignore)")
	flags.Float64("target-viking", -1, "Target final V2 fraction of Vikings (negative = ignore)")
	flags.Int("interactions", 0, "Interactions per run (0 = use config)")
	flags.Int("seeds", 3, "Number of seeds per evaluation")
	flags.Int("max-evals", 100, "Maximum number of evaluations")
	flags.String("output", "", "Output directory for results")
	flags.Bool("progress", false, "Print the progress table of every run")

	if err := cmd.Execute(); err != nil {
		slog.Error("calibration failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	targetCelt, _ := flags.GetFloat64("target-celt")
	targetViking, _ := flags.GetFloat64("target-viking")
	interactions, _ := flags.GetInt("interactions")
	seeds, _ := flags.GetInt("seeds")
	maxEvals, _ := flags.GetInt("max-evals")
	outputDir, _ := flags.GetString("output")
	progress, _ := flags.GetBool("progress")

	if outputDir == "" {
		return fmt.Errorf("--output is required")
	}
	if seeds < 1 {
		return fmt.Errorf("--seeds must be at least 1")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if !progress {
		sim.SetLogWriter(io.Discard)
	}

	base, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if interactions > 0 {
		base.Interactions = interactions
	}
	rc, err := sim.LoadRunContext(base)
	if err != nil {
		return err
	}

	params := NewParamVector(base)

	evalSeeds := make([]int64, seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	evaluator := NewFitnessEvaluator(params, base, rc, evalSeeds, Targets{targetCelt, targetViking}, base.Workers)

	logPath := filepath.Join(outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := failedFitness
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(ctx, raw)
			evalCount++

			if fitness < bestFitness || bestParams == nil {
				bestFitness = fitness
				bestParams = raw
			}

			rows := []evalRow{newEvalRow(evalCount, fitness, evaluator.LastMean(), raw)}
			var logErr error
			if evalCount == 1 {
				logErr = gocsv.Marshal(rows, logFile)
			} else {
				logErr = gocsv.MarshalWithoutHeaders(rows, logFile)
			}
			if logErr != nil {
				slog.Warn("failed to log evaluation", "error", logErr)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(maxEvals-evalCount) * avgPerEval
			means := evaluator.LastMean()
			fmt.Printf("Eval %d/%d: celt=%.4f viking=%.4f fitness=%.6f (best=%.6f) | elapsed: %s, ETA: %s\n",
				evalCount, maxEvals, means[0], means[1], fitness, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0,
	}
	method := &optimize.NelderMead{}

	fmt.Printf("Starting Nelder-Mead calibration with %d parameters, max_evals=%d\n", params.Dim(), maxEvals)
	fmt.Printf("Seeds per evaluation: %d, interactions per run: %s\n", seeds, humanize.Comma(int64(base.Interactions)))

	result, err := optimize.Minimize(problem, params.Normalize(params.DefaultVector()), settings, method)
	if err != nil {
		slog.Info("optimization ended", "reason", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		return fmt.Errorf("no evaluation completed")
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.6f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	best := base.Clone()
	params.ApplyToConfig(best, bestParams)
	configOutPath := filepath.Join(outputDir, "best_config.yaml")
	if err := best.WriteYAML(configOutPath); err != nil {
		return fmt.Errorf("failed to write best config: %w", err)
	}
	fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	return nil
}
