package systems

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/v2drift/grammar"
)

func TestNewGrammarDrawsFromCorpus(t *testing.T) {
	corpus := grammar.NewFrequencyTable()
	corpus.AddN(grammar.Utterance{Verb: grammar.Vf, Adverb: grammar.Then, V2: true}, 3)
	corpus.AddN(grammar.Utterance{Verb: grammar.Aux, Adverb: grammar.AdvO, V2: false}, 1)

	g, err := NewGrammar(corpus, 400, rand.New(rand.NewSource(21)))
	if err != nil {
		t.Fatalf("NewGrammar failed: %v", err)
	}
	if g.Exemplars.Len() != 400 {
		t.Fatalf("Len() = %d, want 400", g.Exemplars.Len())
	}
	if g.Exemplars == corpus {
		t.Fatal("agent shares the corpus table")
	}
	share := g.Exemplars.Total().V2Fraction()
	if math.Abs(share-0.75) > 0.08 {
		t.Errorf("V2 share = %.3f, want ~0.75", share)
	}
	if g.Doubt != InitialDoubt(g.Exemplars) {
		t.Errorf("Doubt = %v, want InitialDoubt of the drawn pool", g.Doubt)
	}
}

func TestNewGrammarEmptyCorpus(t *testing.T) {
	_, err := NewGrammar(grammar.NewFrequencyTable(), 5, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrEmptyCorpus) {
		t.Errorf("error = %v, want ErrEmptyCorpus", err)
	}
}

func TestInitialDoubt(t *testing.T) {
	noV2 := grammar.NewFrequencyTable()
	noV2.AddN(grammar.Utterance{Verb: grammar.Vf, Adverb: grammar.Then}, 10)

	allV2 := grammar.NewFrequencyTable()
	allV2.AddN(grammar.Utterance{Verb: grammar.Vf, Adverb: grammar.Then, V2: true}, 10)
	allV2.AddN(grammar.Utterance{Verb: grammar.Aux, Adverb: grammar.AdvO, V2: true}, 10)

	half := grammar.NewFrequencyTable()
	for _, v := range grammar.Verbs {
		for _, a := range grammar.Adverbs {
			half.Add(grammar.Utterance{Verb: v, Adverb: a, V2: true})
			half.Add(grammar.Utterance{Verb: v, Adverb: a, V2: false})
		}
	}

	tests := []struct {
		name string
		tbl  *grammar.FrequencyTable
		want float64
	}{
		{"no V2 clamps to floor", noV2, InverseSigmoid(minMeanV2, DoubtMidpoint, DoubtSteepness)},
		{"all V2 clamps to ceiling", allV2, InverseSigmoid(maxMeanV2, DoubtMidpoint, DoubtSteepness)},
		{"half V2 sits on midpoint", half, DoubtMidpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialDoubt(tt.tbl)
			if math.IsInf(got, 0) || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("InitialDoubt = %v, want %v", got, tt.want)
			}
		})
	}
}
