package sim

import (
	"fmt"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/grammar"
)

// Profile holds what distinguishes one population: its sizes per location and
// the historical corpus its agents are seeded from.
type Profile struct {
	Variant components.Variant
	Sizes   []int // one entry per location
	Size    int   // sum of Sizes
	Corpus  *grammar.FrequencyTable
}

// RunContext holds both population profiles. It is read-only once built and
// may be shared by concurrent runs.
type RunContext struct {
	Celt   Profile
	Viking Profile
}

// NewRunContext builds a run context from parameters and already loaded corpora.
func NewRunContext(p *config.Parameters, celt, viking *grammar.FrequencyTable) RunContext {
	return RunContext{
		Celt: Profile{
			Variant: components.Celt,
			Sizes:   p.Population.Celt,
			Size:    p.Derived.CeltSize,
			Corpus:  celt,
		},
		Viking: Profile{
			Variant: components.Viking,
			Sizes:   p.Population.Viking,
			Size:    p.Derived.VikingSize,
			Corpus:  viking,
		},
	}
}

// LoadRunContext reads the corpora named in p, falling back to the built-in
// corpora when no path is set.
func LoadRunContext(p *config.Parameters) (RunContext, error) {
	celt, err := grammar.LoadCorpus(p.Corpus.Celt, "celt")
	if err != nil {
		return RunContext{}, fmt.Errorf("loading celt corpus: %w", err)
	}
	viking, err := grammar.LoadCorpus(p.Corpus.Viking, "viking")
	if err != nil {
		return RunContext{}, fmt.Errorf("loading viking corpus: %w", err)
	}
	return NewRunContext(p, celt, viking), nil
}

// Profile returns the profile of variant v.
func (rc *RunContext) Profile(v components.Variant) *Profile {
	if v == components.Viking {
		return &rc.Viking
	}
	return &rc.Celt
}
