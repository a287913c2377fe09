// Package telemetry provides run bookkeeping, windowed statistics, lifetime
// tracking, snapshots and structured output for the simulation.
package telemetry

import "fmt"

// InteractionKind identifies how a speaker/listener pair was drawn.
type InteractionKind uint8

const (
	InteractionSame  InteractionKind = iota // both agents from one population
	InteractionCross                        // one agent from each population
)

func (k InteractionKind) String() string {
	if k == InteractionCross {
		return "cross"
	}
	return "same"
}

// DeathCause identifies why an agent was replaced.
type DeathCause uint8

const (
	DeathExhausted DeathCause = iota + 1 // memory depleted to a single exemplar
	DeathAge                             // spoken+heard reached the configured limit
)

func (c DeathCause) String() string {
	switch c {
	case DeathExhausted:
		return "exhausted"
	case DeathAge:
		return "age"
	default:
		return fmt.Sprintf("DeathCause(%d)", uint8(c))
	}
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (c DeathCause) MarshalCSV() (string, error) {
	return c.String(), nil
}
