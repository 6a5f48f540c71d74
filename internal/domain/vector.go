package domain

import "math"

// Normalize returns an L2-normalized copy of v. Zero vectors are returned unchanged
// so that they score 0 against everything under inner product.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// NormalizeAll normalizes every row of a matrix.
func NormalizeAll(vs [][]float32) [][]float32 {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = Normalize(v)
	}
	return out
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// CheckDimensions validates that every vector has length dim.
func CheckDimensions(dim int, vs ...[]float32) error {
	for _, v := range vs {
		if len(v) != dim {
			return NewDimensionError(dim, len(v))
		}
	}
	return nil
}
