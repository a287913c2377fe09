// Package config provides parameter loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid parameters")

// SigmoidMode selects how the production probability is computed.
type SigmoidMode int

const (
	SigmoidOff   SigmoidMode = 0 // average of verb and adverb V2 fractions
	SigmoidBlend SigmoidMode = 1 // weighted average including sigmoid(doubt)
	SigmoidOnly  SigmoidMode = 2 // sigmoid(doubt) alone
)

// DeathMode selects the age-based death policy. Exhaustion death is driven by
// RemoveExemplars and is independent of this setting.
type DeathMode int

const (
	DeathNone  DeathMode = 0
	DeathByAge DeathMode = 2 // die once spoken+heard reaches Death.After
)

// Parameters holds all experiment parameters.
type Parameters struct {
	Runs    int   `yaml:"runs"`
	Seed    int64 `yaml:"seed"`
	Workers int   `yaml:"workers"`

	Locations  int              `yaml:"locations"`
	Population PopulationConfig `yaml:"population"`

	InitialUtterances int     `yaml:"initial_utterances"`
	CrossInteraction  float64 `yaml:"cross_interaction"`
	Interactions      int     `yaml:"interactions"`
	PrintEvery        int     `yaml:"print_every"`

	RemoveExemplars bool `yaml:"remove_exemplars"`

	Doubt   DoubtConfig   `yaml:"doubt"`
	Growth  GrowthConfig  `yaml:"growth"`
	Death   DeathConfig   `yaml:"death"`
	Pairing PairingConfig `yaml:"pairing"`
	Corpus  CorpusConfig  `yaml:"corpus"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PopulationConfig holds per-location population sizes.
type PopulationConfig struct {
	Celt   []int `yaml:"celt"`   // population 1, one entry per location
	Viking []int `yaml:"viking"` // population 2, one entry per location
}

// DoubtConfig holds doubt dynamics parameters.
type DoubtConfig struct {
	Step        float64     `yaml:"step"`         // change applied on every speak and hear
	Influence   float64     `yaml:"influence"`    // weight of sigmoid(doubt) in blended mode
	SigmoidMode SigmoidMode `yaml:"sigmoid_mode"` // see SigmoidMode
}

// GrowthConfig holds the alert rates protecting minority features.
type GrowthConfig struct {
	Vf   float64 `yaml:"vf"`
	Then float64 `yaml:"then"`
}

// DeathConfig holds death-and-rebirth parameters.
type DeathConfig struct {
	Mode  DeathMode `yaml:"mode"`
	After int       `yaml:"after"`
}

// PairingConfig bounds the speaker/listener resampling loop.
type PairingConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// CorpusConfig holds historical frequency file paths.
type CorpusConfig struct {
	Celt   string `yaml:"celt"`
	Viking string `yaml:"viking"`
}

// DerivedConfig holds computed values derived from the loaded parameters.
type DerivedConfig struct {
	CeltSize   int // sum of Population.Celt
	VikingSize int // sum of Population.Viking
}

// Default returns the embedded defaults.
func Default() *Parameters {
	cfg, err := parse(defaultsYAML, &Parameters{})
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	cfg.computeDerived()
	return cfg
}

// Load loads parameters from a YAML file, merging with embedded defaults,
// and validates the result.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Parameters, error) {
	cfg, err := parse(defaultsYAML, &Parameters{})
	if err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if _, err := parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte, cfg *Parameters) (*Parameters, error) {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded parameters.
func (p *Parameters) computeDerived() {
	p.Derived.CeltSize = sum(p.Population.Celt)
	p.Derived.VikingSize = sum(p.Population.Viking)
}

// Recompute refreshes derived values after fields were changed in code.
func (p *Parameters) Recompute() {
	p.computeDerived()
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

// Validate reports every malformed field. The returned error wraps ErrInvalid.
func (p *Parameters) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if p.Runs < 1 {
		fail("runs must be at least 1, got %d", p.Runs)
	}
	if p.Workers < 1 {
		fail("workers must be at least 1, got %d", p.Workers)
	}
	if p.Locations < 1 {
		fail("locations must be at least 1, got %d", p.Locations)
	}

	checkSizes := func(name string, sizes []int) {
		if len(sizes) != p.Locations {
			fail("population.%s has %d entries, want one per location (%d)", name, len(sizes), p.Locations)
		}
		for i, n := range sizes {
			if n < 0 {
				fail("population.%s[%d] is negative (%d)", name, i, n)
			}
		}
	}
	checkSizes("celt", p.Population.Celt)
	checkSizes("viking", p.Population.Viking)

	celt, viking := p.Derived.CeltSize, p.Derived.VikingSize
	if celt+viking == 0 {
		fail("both populations are empty")
	}
	if celt == 1 {
		fail("population.celt totals 1; a non-empty population needs at least 2 agents")
	}
	if viking == 1 {
		fail("population.viking totals 1; a non-empty population needs at least 2 agents")
	}

	if p.CrossInteraction < 0 || p.CrossInteraction > 1 {
		fail("cross_interaction must be in [0, 1], got %g", p.CrossInteraction)
	}
	if p.CrossInteraction > 0 && (celt == 0 || viking == 0) {
		fail("cross_interaction %g requires both populations to be non-empty", p.CrossInteraction)
	}

	if p.InitialUtterances < 1 {
		fail("initial_utterances must be at least 1, got %d", p.InitialUtterances)
	}
	if p.Interactions < 0 {
		fail("interactions must not be negative, got %d", p.Interactions)
	}
	if p.PrintEvery < 1 {
		fail("print_every must be at least 1, got %d", p.PrintEvery)
	}

	switch p.Doubt.SigmoidMode {
	case SigmoidOff, SigmoidBlend, SigmoidOnly:
	default:
		fail("doubt.sigmoid_mode must be 0, 1 or 2, got %d", p.Doubt.SigmoidMode)
	}
	if p.Doubt.Influence < 0 {
		fail("doubt.influence must not be negative, got %g", p.Doubt.Influence)
	}
	if p.Doubt.Step < 0 {
		fail("doubt.step must not be negative, got %g", p.Doubt.Step)
	}

	if p.Growth.Vf < 0 {
		fail("growth.vf must not be negative, got %g", p.Growth.Vf)
	}
	if p.Growth.Then < 0 {
		fail("growth.then must not be negative, got %g", p.Growth.Then)
	}

	switch p.Death.Mode {
	case DeathNone, 1:
		// Mode 1 is accepted for old parameter sets; exhaustion death is
		// controlled by remove_exemplars alone.
	case DeathByAge:
		if p.Death.After < 1 {
			fail("death.after must be at least 1 when death.mode is 2, got %d", p.Death.After)
		}
	default:
		fail("death.mode must be 0, 1 or 2, got %d", p.Death.Mode)
	}

	if p.Pairing.MaxAttempts < 1 {
		fail("pairing.max_attempts must be at least 1, got %d", p.Pairing.MaxAttempts)
	}

	return errors.Join(errs...)
}

// WriteYAML writes the parameters to a YAML file.
func (p *Parameters) WriteYAML(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.Population.Celt = append([]int(nil), p.Population.Celt...)
	c.Population.Viking = append([]int(nil), p.Population.Viking...)
	return &c
}
