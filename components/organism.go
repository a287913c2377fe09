package components

import "github.com/pthm-cable/v2drift/grammar"

// Origin bundles identity and placement. It never changes after birth.
type Origin struct {
	ID       uint32
	Variant  Variant
	Location int // 0..locations-1
	BornAt   int // interaction number of birth, 0 for founders
}

// Grammar is the agent's private language model.
type Grammar struct {
	Exemplars *grammar.FrequencyTable // owned exclusively by this agent
	Doubt     float64                 // free-running bias toward (+) or away from (-) V2
}

// Activity counts interactions since birth.
type Activity struct {
	Spoken int
	Heard  int
}

// Age returns the number of interactions the agent took part in.
func (a Activity) Age() int {
	return a.Spoken + a.Heard
}
