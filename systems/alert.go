package systems

import (
	"math"

	"github.com/pthm-cable/v2drift/config"
	"github.com/pthm-cable/v2drift/grammar"
)

// maxAlertPeriod bounds the pulse period; longer periods never fire.
const maxAlertPeriod = math.MaxInt32

// alertPeriod returns popSize floor-divided by rate, or 0 when the rate
// disables the pulse, the period floors to zero or it exceeds maxAlertPeriod.
func alertPeriod(popSize int, rate float64) int {
	if rate <= 0 {
		return 0
	}
	q := floorDiv(float64(popSize), rate)
	if q >= maxAlertPeriod {
		return 0
	}
	return int(q)
}

// floorDiv is float floor division computed from the remainder, so that
// 20/0.1 floors to 199 like 20 - fmod(20, 0.1) does, not to the rounded 200.
// a and b must be non-negative.
func floorDiv(a, b float64) float64 {
	m := math.Mod(a, b)
	div := (a - m) / b
	fl := math.Floor(div)
	if div-fl > 0.5 {
		fl++
	}
	return fl
}

// pulse reports whether interaction i falls on the protection pulse.
func pulse(i, popSize int, rate float64) bool {
	period := alertPeriod(popSize, rate)
	return period > 0 && i%period == 0
}

// Alert reports whether the minority-feature protection pulse is active for
// interaction i. Every popSize/rate interactions a feature that is currently the
// minority form in the agent's memory is shielded from depletion. popSize is
// the total size of the speaker's own population.
func Alert(i int, rates config.GrowthConfig, popSize int, exemplars *grammar.FrequencyTable) bool {
	if pulse(i, popSize, rates.Vf) && exemplars.Vf().Total() < exemplars.Aux().Total() {
		return true
	}
	if pulse(i, popSize, rates.Then) && exemplars.Then().Total() < exemplars.AdvO().Total() {
		return true
	}
	return false
}
