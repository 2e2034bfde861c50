package vecstore

import "math"

// dotProduct computes the dot product of two vectors.
func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// norm computes the L2 norm (magnitude) of a vector.
func norm(v []float64) float64 {
	return math.Sqrt(dotProduct(v, v))
}

// normalize returns a unit vector in the same direction.
// A zero vector is returned unchanged.
func normalize(v []float64) []float64 {
	n := norm(v)
	result := make([]float64, len(v))
	if n == 0 {
		copy(result, v)
		return result
	}
	for i := range v {
		result[i] = v[i] / n
	}
	return result
}
