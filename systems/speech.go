package systems

import (
	"errors"
	"math/rand"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/grammar"
)

// ErrExemplarsExhausted is returned when a speaker has no exemplar left to
// produce from. It is fatal for the run.
var ErrExemplarsExhausted = errors.New("agent ran out of exemplars")

// SpeechConfig holds the parameters used by Speak and Hear.
type SpeechConfig struct {
	DoubtStep       float64
	DoubtInfluence  float64
	Mode            config.SigmoidMode
	RemoveExemplars bool
	Growth          config.GrowthConfig
}

// NewSpeechConfig extracts the speech parameters from p.
func NewSpeechConfig(p *config.Parameters) SpeechConfig {
	return SpeechConfig{
		DoubtStep:       p.Doubt.Step,
		DoubtInfluence:  p.Doubt.Influence,
		Mode:            p.Doubt.SigmoidMode,
		RemoveExemplars: p.RemoveExemplars,
		Growth:          p.Growth,
	}
}

// SpeechResult describes one production.
type SpeechResult struct {
	Utterance grammar.Utterance
	PV2       float64 // probability the V2 order was drawn with
	Alert     bool    // protection pulse was active
	Removed   bool    // an exemplar was depleted from the speaker's memory
}

// ProductionProbability combines the exemplar-based V2 fractions with the
// agent's doubt according to mode.
func ProductionProbability(mode config.SigmoidMode, pVerb, pAdverb, doubt, influence float64) float64 {
	switch mode {
	case config.SigmoidBlend:
		s := Sigmoid(doubt, DoubtMidpoint, DoubtSteepness)
		return (pVerb + pAdverb + influence*s) / (influence + 2)
	case config.SigmoidOnly:
		return Sigmoid(doubt, DoubtMidpoint, DoubtSteepness)
	default:
		return (pVerb + pAdverb) / 2
	}
}

// Speak produces an utterance from the agent's language model.
// interaction is the 1-based interaction number and popSize the total size of
// the speaker's population; both only matter for the protection pulse.
func Speak(
	interaction, popSize int,
	g *components.Grammar,
	act *components.Activity,
	cfg SpeechConfig,
	rng *rand.Rand,
) (SpeechResult, error) {
	act.Spoken++

	exemplar, ok := g.Exemplars.RandomExemplar(rng)
	if !ok {
		return SpeechResult{}, ErrExemplarsExhausted
	}

	pVerb := g.Exemplars.VerbSlice(exemplar.Verb).V2Fraction()
	pAdverb := g.Exemplars.AdverbSlice(exemplar.Adverb).V2Fraction()
	pV2 := ProductionProbability(cfg.Mode, pVerb, pAdverb, g.Doubt, cfg.DoubtInfluence)

	res := SpeechResult{
		Utterance: exemplar.WithV2(rng.Float64() < pV2),
		PV2:       pV2,
	}

	updateDoubt(g, res.Utterance.V2, cfg.DoubtStep)

	// Production depletes memory unless the protection pulse is active.
	if cfg.RemoveExemplars {
		res.Alert = Alert(interaction, cfg.Growth, popSize, g.Exemplars)
		if !res.Alert {
			res.Removed = g.Exemplars.Remove(res.Utterance)
		}
	}

	return res, nil
}

// Hear stores a perceived utterance. Perception always reinforces memory.
func Hear(u grammar.Utterance, g *components.Grammar, act *components.Activity, cfg SpeechConfig) {
	act.Heard++
	g.Exemplars.Add(u)
	updateDoubt(g, u.V2, cfg.DoubtStep)
}

func updateDoubt(g *components.Grammar, v2 bool, step float64) {
	if v2 {
		g.Doubt += step
	} else {
		g.Doubt -= step
	}
}
