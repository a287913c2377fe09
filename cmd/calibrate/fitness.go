package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/sim"
	"github.com/pthm-cable/v2drift/telemetry"
)

// failedFitness is returned for parameter sets whose runs fail.
const failedFitness = 1e9

// Targets holds the desired final V2 fraction per variant. A negative target
// is ignored.
type Targets [2]float64

// FitnessEvaluator runs simulations and scores their final V2 fractions.
type FitnessEvaluator struct {
	params  *ParamVector
	base    *config.Parameters
	rc      sim.RunContext
	seeds   []int64
	targets Targets
	workers int

	mu       sync.Mutex
	lastMean [2]float64 // mean final fraction per variant from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, base *config.Parameters, rc sim.RunContext, seeds []int64, targets Targets, workers int) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:  params,
		base:    base,
		rc:      rc,
		seeds:   seeds,
		targets: targets,
		workers: max(workers, 1),
	}
}

// LastMean returns the mean final fractions from the most recent evaluation.
func (fe *FitnessEvaluator) LastMean() [2]float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean
}

// Evaluate computes fitness for raw parameter values (lower = better).
// Every seed is run with the same parameters.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) float64 {
	p := fe.base.Clone()
	fe.params.ApplyToConfig(p, x)

	results := make([]sim.Result, len(fe.seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fe.workers)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			s, err := sim.New(p, fe.rc, sim.Options{Seed: seed, Run: i, Runs: len(fe.seeds)})
			if err != nil {
				return err
			}
			res, err := s.Run(ctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("evaluation failed", "error", err)
		return failedFitness
	}

	var finals []telemetry.FinalFraction
	for _, r := range results {
		finals = append(finals, r.Finals...)
	}
	means := meanFractions(finals)

	fe.mu.Lock()
	fe.lastMean = means
	fe.mu.Unlock()

	return computeFitness(means, fe.targets)
}

// meanFractions averages final fractions per variant over locations and runs.
// A variant without data yields NaN.
func meanFractions(finals []telemetry.FinalFraction) [2]float64 {
	var values [2][]float64
	for _, f := range finals {
		values[f.Variant.Index()] = append(values[f.Variant.Index()], f.V2Fraction)
	}
	var means [2]float64
	for _, v := range components.Variants {
		if len(values[v.Index()]) == 0 {
			means[v.Index()] = math.NaN()
			continue
		}
		means[v.Index()] = stat.Mean(values[v.Index()], nil)
	}
	return means
}

// computeFitness is the squared distance between means and targets over the
// variants that have both a target and data.
func computeFitness(means [2]float64, targets Targets) float64 {
	var sq float64
	for i, target := range targets {
		if target < 0 || math.IsNaN(means[i]) {
			continue
		}
		d := means[i] - target
		sq += d * d
	}
	return sq
}
