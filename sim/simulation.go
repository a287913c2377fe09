// Package sim runs the interaction scheduler: two populations of agents
// exchanging utterances, with pairing constraints, bookkeeping and
// death-and-rebirth.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/grammar"
	"github.com/pthm-cable/v2drift/systems"
	"github.com/pthm-cable/v2drift/telemetry"
)

// cancelCheckEvery is how many interactions run between context checks.
const cancelCheckEvery = 1024

// Options configures a single run.
type Options struct {
	Seed     int64
	Run      int // 0-based run index
	Runs     int // total runs in the experiment, for the banner
	Output   *telemetry.OutputManager
	LogStats bool // log window stats with slog
	Perf     bool // time interaction phases
}

// Agent identifies one population member.
type Agent struct {
	Entity   ecs.Entity
	ID       uint32
	Variant  components.Variant
	Location int
}

// Interaction describes one completed exchange.
type Interaction struct {
	Number     int
	Kind       telemetry.InteractionKind
	Speaker    Agent
	Listener   Agent
	Speech     systems.SpeechResult
	Rejections int // pairs discarded before this one was accepted
	Deaths     []telemetry.DeathRecord
}

// Result is the outcome of a completed run.
type Result struct {
	RunID        string
	Run          int
	Seed         int64
	Interactions int
	Duration     time.Duration

	Finals   []telemetry.FinalFraction
	Series   []telemetry.SeriesPoint
	Counts   telemetry.Counts
	Snapshot *telemetry.Snapshot
}

// Simulation holds the state of one run.
type Simulation struct {
	params *config.Parameters
	rc     RunContext
	speech systems.SpeechConfig
	rng    *rand.Rand
	opts   Options
	runID  string

	world       *ecs.World
	agentMap    *ecs.Map3[components.Origin, components.Grammar, components.Activity]
	agentFilter *ecs.Filter3[components.Origin, components.Grammar, components.Activity]
	originMap   *ecs.Map[components.Origin]

	// Ordered population members, indexed by Variant.Index()
	pops   [2][]ecs.Entity
	nextID uint32

	interaction int
	started     time.Time

	bookkeeper *telemetry.Bookkeeper
	collector  *telemetry.Collector
	lifetime   *telemetry.LifetimeTracker
	perf       *telemetry.PerfCollector
	output     *telemetry.OutputManager
	sample     telemetry.AgentSample
}

// New builds the ECS world and both populations, location by location.
func New(p *config.Parameters, rc RunContext, opts Options) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	runID := uuid.NewString()

	s := &Simulation{
		params:      p,
		rc:          rc,
		speech:      systems.NewSpeechConfig(p),
		rng:         rand.New(rand.NewSource(opts.Seed)),
		opts:        opts,
		runID:       runID,
		world:       world,
		agentMap:    ecs.NewMap3[components.Origin, components.Grammar, components.Activity](world),
		agentFilter: ecs.NewFilter3[components.Origin, components.Grammar, components.Activity](world),
		originMap:   ecs.NewMap[components.Origin](world),
		nextID:      1,
		bookkeeper:  telemetry.NewBookkeeper(runID, opts.Run, p.Locations),
		collector:   telemetry.NewCollector(runID, opts.Run, p.PrintEvery),
		lifetime:    telemetry.NewLifetimeTracker(runID, opts.Run),
		output:      opts.Output,
	}
	if opts.Perf {
		s.perf = telemetry.NewPerfCollector(p.PrintEvery)
	}

	if err := s.spawnInitialPopulation(); err != nil {
		return nil, err
	}
	return s, nil
}

// RunID returns the unique identifier of this run.
func (s *Simulation) RunID() string {
	return s.runID
}

// Interaction returns the number of completed interactions.
func (s *Simulation) Interaction() int {
	return s.interaction
}

// Population returns the ordered members of variant v. The slice is owned by
// the simulation and changes on the next Step.
func (s *Simulation) Population(v components.Variant) []ecs.Entity {
	return s.pops[v.Index()]
}

// Agent returns the components of a live population member.
func (s *Simulation) Agent(e ecs.Entity) (*components.Origin, *components.Grammar, *components.Activity) {
	return s.agentMap.Get(e)
}

// Counts returns the event counters accumulated so far.
func (s *Simulation) Counts() telemetry.Counts {
	return s.collector.Totals()
}

// Step runs one interaction: pairing, speak, hear, bookkeeping, progress
// output and the death check.
func (s *Simulation) Step() (Interaction, error) {
	s.interaction++
	i := s.interaction

	s.perf.StartInteraction()
	s.perf.StartPhase(telemetry.PhasePairing)

	pair, err := s.selectPair()
	s.collector.RecordRejections(pair.rejections)
	if err != nil {
		return Interaction{}, fmt.Errorf("interaction %d: %w", i, err)
	}

	speakerOrigin, speakerGrammar, speakerAct := s.agentMap.Get(pair.speaker)
	listenerOrigin, listenerGrammar, listenerAct := s.agentMap.Get(pair.listener)

	out := Interaction{
		Number:     i,
		Kind:       pair.kind,
		Speaker:    agentOf(pair.speaker, speakerOrigin),
		Listener:   agentOf(pair.listener, listenerOrigin),
		Rejections: pair.rejections,
	}

	s.perf.StartPhase(telemetry.PhaseSpeak)
	popSize := s.rc.Profile(speakerOrigin.Variant).Size
	res, err := systems.Speak(i, popSize, speakerGrammar, speakerAct, s.speech, s.rng)
	if err != nil {
		return Interaction{}, fmt.Errorf("interaction %d: %s agent %d: %w", i, speakerOrigin.Variant, speakerOrigin.ID, err)
	}
	out.Speech = res

	s.perf.StartPhase(telemetry.PhaseHear)
	systems.Hear(res.Utterance, listenerGrammar, listenerAct, s.speech)

	s.perf.StartPhase(telemetry.PhaseBookkeeping)
	s.bookkeeper.Record(i, speakerOrigin.Location, speakerOrigin.Variant, res.Utterance)
	s.collector.RecordInteraction(pair.kind)
	s.collector.RecordSpeech(res.Utterance.V2, res.Alert, res.Removed)
	s.lifetime.RecordSpeech(speakerOrigin.ID, res.Alert, res.Removed)
	if i%s.params.PrintEvery == 0 {
		s.logProgress()
	}

	s.perf.StartPhase(telemetry.PhaseDeath)
	deaths, err := s.applyDeaths(pair.speaker, pair.listener)
	if err != nil {
		return Interaction{}, fmt.Errorf("interaction %d: %w", i, err)
	}
	out.Deaths = deaths

	s.perf.EndInteraction()

	if s.collector.ShouldFlush(i) {
		s.flushTelemetry()
	}

	return out, nil
}

func agentOf(e ecs.Entity, o *components.Origin) Agent {
	return Agent{Entity: e, ID: o.ID, Variant: o.Variant, Location: o.Location}
}

// Run performs all configured interactions and returns the run's result.
// It stops early with ctx's error when ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) (Result, error) {
	s.started = time.Now()
	s.logHeader()

	slog.Debug("run started",
		"run", s.opts.Run+1,
		"run_id", s.runID,
		"seed", s.opts.Seed,
		"celt", s.rc.Celt.Size,
		"viking", s.rc.Viking.Size,
	)

	for s.interaction < s.params.Interactions {
		if s.interaction%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if _, err := s.Step(); err != nil {
			return Result{}, err
		}
	}

	return s.finalize()
}

// finalize flushes the last partial window and writes the run's outputs.
func (s *Simulation) finalize() (Result, error) {
	if s.interaction > 0 && s.interaction%s.collector.WindowSize() != 0 {
		s.flushTelemetry()
	}

	res := Result{
		RunID:        s.runID,
		Run:          s.opts.Run,
		Seed:         s.opts.Seed,
		Interactions: s.interaction,
		Duration:     time.Since(s.started),
		Finals:       s.bookkeeper.Finals(),
		Series:       s.bookkeeper.Series(),
		Counts:       s.collector.Totals(),
		Snapshot:     s.snapshot(),
	}

	if err := s.output.WriteSeries(res.Series); err != nil {
		return res, err
	}
	if err := s.output.WriteFinals(res.Finals); err != nil {
		return res, err
	}
	if _, err := s.output.WriteSnapshot(res.Snapshot); err != nil {
		return res, err
	}

	slog.Info("run finished",
		"run", s.opts.Run+1,
		"run_id", s.runID,
		"interactions", humanize.Comma(int64(res.Interactions)),
		"deaths", res.Counts.Deaths(),
		"duration", res.Duration.Round(time.Millisecond).String(),
	)
	return res, nil
}

// snapshot captures every population member in population order.
func (s *Simulation) snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		RunID:       s.runID,
		Run:         s.opts.Run,
		Seed:        s.opts.Seed,
		Interaction: s.interaction,
	}
	for _, v := range components.Variants {
		for _, e := range s.pops[v.Index()] {
			o, g, act := s.agentMap.Get(e)
			snap.Agents = append(snap.Agents, telemetry.NewAgentState(o.ID, *o, *g, *act))
		}
	}
	return snap
}

func corpusFraction(t *grammar.FrequencyTable) float64 {
	if t == nil {
		return 0
	}
	return t.Total().V2Fraction()
}
