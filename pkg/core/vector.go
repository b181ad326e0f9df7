package core

import "math"

// FeatureVector is a derived, non-owning projection of one Observation.
// Degraded vectors were computed without the embedding capability, from
// structural features only; downstream consumers may down-weight them.
type FeatureVector struct {
	Values   []float64
	Degraded bool
}

// EuclideanDistance computes the L2 distance between two equal-length vectors.
// Mismatched lengths report +Inf so callers never cluster across projection
// schemas.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
