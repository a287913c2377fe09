package systems

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/grammar"
)

// ErrEmptyCorpus is returned when an agent is seeded from a corpus without exemplars.
var ErrEmptyCorpus = errors.New("historical corpus is empty")

// NewGrammar builds a fresh language model by drawing n utterances from the
// historical corpus, and derives the agent's initial doubt from them.
func NewGrammar(corpus *grammar.FrequencyTable, n int, rng *rand.Rand) (components.Grammar, error) {
	exemplars := grammar.NewFrequencyTable()
	for i := 0; i < n; i++ {
		u, ok := corpus.RandomUtterance(rng)
		if !ok {
			return components.Grammar{}, ErrEmptyCorpus
		}
		exemplars.Add(u)
	}
	return components.Grammar{
		Exemplars: exemplars,
		Doubt:     InitialDoubt(exemplars),
	}, nil
}

// InitialDoubt maps the mean V2 fraction of the four feature slices through
// the inverse doubt curve. The mean is kept within [0.001, 0.999].
func InitialDoubt(exemplars *grammar.FrequencyTable) float64 {
	fractions := []float64{
		exemplars.Vf().V2Fraction(),
		exemplars.Aux().V2Fraction(),
		exemplars.Then().V2Fraction(),
		exemplars.AdvO().V2Fraction(),
	}
	mean := clampFloat(stat.Mean(fractions, nil), minMeanV2, maxMeanV2)
	return InverseSigmoid(mean, DoubtMidpoint, DoubtSteepness)
}
