package sim

import (
	"errors"
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/telemetry"
)

// ErrPairingExhausted is returned when no speaker/listener pair satisfying the
// location constraint was found within the configured number of attempts.
var ErrPairingExhausted = errors.New("no valid speaker/listener pair found")

type pair struct {
	speaker, listener ecs.Entity
	kind              telemetry.InteractionKind
	rejections        int
}

// selectPair draws speaker and listener until their locations are at most one
// apart. Each attempt first decides between a same-population and a
// cross-population exchange, then which population supplies the speaker.
func (s *Simulation) selectPair() (pair, error) {
	celt, viking := s.rc.Celt.Size, s.rc.Viking.Size
	celtShare := float64(celt) / float64(celt+viking)
	maxAttempts := s.params.Pairing.MaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var p pair
		speakerVariant := components.Viking
		if s.rng.Float64() >= s.params.CrossInteraction {
			p.kind = telemetry.InteractionSame
			if s.rng.Float64() < celtShare {
				speakerVariant = components.Celt
			}
			p.speaker, p.listener = s.pickTwo(speakerVariant)
		} else {
			p.kind = telemetry.InteractionCross
			listenerVariant := components.Celt
			if s.rng.Float64() < celtShare {
				speakerVariant, listenerVariant = components.Celt, components.Viking
			}
			p.speaker = s.pickOne(speakerVariant)
			p.listener = s.pickOne(listenerVariant)
		}

		if s.adjacent(p.speaker, p.listener) {
			p.rejections = attempt
			return p, nil
		}
	}

	return pair{rejections: maxAttempts}, fmt.Errorf("%w after %d attempts", ErrPairingExhausted, maxAttempts)
}

// pickOne draws a uniformly random member of variant v.
func (s *Simulation) pickOne(v components.Variant) ecs.Entity {
	pop := s.pops[v.Index()]
	return pop[s.rng.Intn(len(pop))]
}

// pickTwo draws two distinct members of variant v without replacement.
func (s *Simulation) pickTwo(v components.Variant) (ecs.Entity, ecs.Entity) {
	pop := s.pops[v.Index()]
	i := s.rng.Intn(len(pop))
	j := s.rng.Intn(len(pop) - 1)
	if j >= i {
		j++
	}
	return pop[i], pop[j]
}

func (s *Simulation) adjacent(a, b ecs.Entity) bool {
	d := s.originMap.Get(a).Location - s.originMap.Get(b).Location
	return d >= -1 && d <= 1
}
