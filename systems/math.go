package systems

import "math"

// Doubt curve shape shared by initial doubt and production.
const (
	DoubtMidpoint  = 1.0
	DoubtSteepness = 0.1

	// Bounds keeping InverseSigmoid away from its singularities.
	minMeanV2 = 0.001
	maxMeanV2 = 0.999
)

// Sigmoid is the logistic curve 1 / (1 + e^(-steepness*(x-midpoint))).
// Range (0, 1) for finite x.
func Sigmoid(x, midpoint, steepness float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(x-midpoint)))
}

// InverseSigmoid returns the x for which Sigmoid(x, midpoint, steepness) == y.
// y == 0 and y == 1 saturate to -Inf and +Inf; y outside [0, 1] yields NaN.
func InverseSigmoid(y, midpoint, steepness float64) float64 {
	switch {
	case y < 0 || y > 1 || math.IsNaN(y):
		return math.NaN()
	case y == 0:
		return math.Inf(-1)
	case y == 1:
		return math.Inf(1)
	}
	return midpoint - math.Log(1/y-1)/steepness
}

// clampFloat clamps v between minVal and maxVal.
func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
