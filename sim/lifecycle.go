package sim

import (
	"fmt"
	"slices"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/v2drift/components"
	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/systems"
	"github.com/pthm-cable/v2drift/telemetry"
)

// spawnInitialPopulation creates all Celts, then all Vikings, each in
// location order.
func (s *Simulation) spawnInitialPopulation() error {
	for _, v := range components.Variants {
		prof := s.rc.Profile(v)
		pop := make([]ecs.Entity, 0, prof.Size)
		for loc, n := range prof.Sizes {
			for range n {
				e, err := s.spawnAgent(v, loc)
				if err != nil {
					return err
				}
				pop = append(pop, e)
			}
		}
		s.pops[v.Index()] = pop
	}
	return nil
}

// spawnAgent creates a fresh agent seeded from its variant's corpus. The
// caller adds it to its population.
func (s *Simulation) spawnAgent(v components.Variant, location int) (ecs.Entity, error) {
	g, err := systems.NewGrammar(s.rc.Profile(v).Corpus, s.params.InitialUtterances, s.rng)
	if err != nil {
		return ecs.Entity{}, fmt.Errorf("spawning %s agent: %w", v, err)
	}

	origin := components.Origin{
		ID:       s.nextID,
		Variant:  v,
		Location: location,
		BornAt:   s.interaction,
	}
	s.nextID++
	act := components.Activity{}

	e := s.agentMap.NewEntity(&origin, &g, &act)
	s.lifetime.Register(origin.ID, origin)
	return e, nil
}

// applyDeaths replaces a speaker whose memory is down to one exemplar, then,
// when age death is on, any participant that has reached the age limit. An
// agent already replaced in this interaction is not examined again.
func (s *Simulation) applyDeaths(speaker, listener ecs.Entity) ([]telemetry.DeathRecord, error) {
	var deaths []telemetry.DeathRecord

	if s.params.RemoveExemplars {
		_, g, _ := s.agentMap.Get(speaker)
		if g.Exemplars.Len() == 1 {
			rec, err := s.replace(speaker, telemetry.DeathExhausted)
			if err != nil {
				return deaths, err
			}
			deaths = append(deaths, rec)
		}
	}

	if s.params.Death.Mode == config.DeathByAge {
		for _, e := range [2]ecs.Entity{speaker, listener} {
			if !s.world.Alive(e) {
				continue
			}
			_, _, act := s.agentMap.Get(e)
			if act.Age() < s.params.Death.After {
				continue
			}
			rec, err := s.replace(e, telemetry.DeathAge)
			if err != nil {
				return deaths, err
			}
			deaths = append(deaths, rec)
		}
	}

	return deaths, nil
}

// replace removes e from its population and the world and appends a fresh
// agent of the same variant and location. The newborn is created before the
// old agent is removed so the population never shrinks.
func (s *Simulation) replace(e ecs.Entity, cause telemetry.DeathCause) (telemetry.DeathRecord, error) {
	o, g, act := s.agentMap.Get(e)
	origin := *o
	rec := s.lifetime.Die(origin.ID, cause, s.interaction, *g, *act)

	born, err := s.spawnAgent(origin.Variant, origin.Location)
	if err != nil {
		return rec, err
	}

	idx := origin.Variant.Index()
	pop := s.pops[idx]
	i := slices.Index(pop, e)
	if i < 0 {
		return rec, fmt.Errorf("%s agent %d is not a population member", origin.Variant, origin.ID)
	}
	pop = slices.Delete(pop, i, i+1)
	s.pops[idx] = append(pop, born)
	s.world.RemoveEntity(e)

	s.collector.RecordDeath(origin.Variant, cause)
	if err := s.output.WriteDeath(rec); err != nil {
		return rec, err
	}
	return rec, nil
}
