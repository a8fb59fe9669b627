package embedding

import (
	"fmt"
	"math"
)

const (
	MetricCosine    = "cosine"
	MetricDot       = "dot"
	MetricEuclidean = "euclidean"
)

// ComputeSimilarity compares two vectors. cosine lies in [-1, 1], dot is
// the raw inner product, and euclidean is 1/(1+distance).
func ComputeSimilarity(v1, v2 []float32, metric string) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: vectors of length %d and %d", ErrInvalidArgument, len(v1), len(v2))
	}

	switch metric {
	case MetricCosine:
		return dot(Normalize(v1), Normalize(v2)), nil

	case MetricDot:
		return dot(v1, v2), nil

	case MetricEuclidean:
		var sum float64
		for i := range v1 {
			d := float64(v1[i] - v2[i])
			sum += d * d
		}
		return float32(1 / (1 + math.Sqrt(sum))), nil

	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, metric)
	}
}

// Normalize returns a unit-length copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}

	if norm == 0 {
		return out
	}

	scale := float32(1 / math.Sqrt(norm))
	for i, x := range v {
		out[i] = x * scale
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
