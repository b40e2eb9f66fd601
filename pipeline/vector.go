package pipeline

import (
	"errors"
	"math"
)

var (
	errEmptyPool      = errors.New("cannot pool an empty list of vectors")
	errDimMismatch    = errors.New("all embeddings must share the same dimensionality")
	errZeroPoolWeight = errors.New("total weight for pooling must be positive")
)

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	// Can't normalize zero vector
	if magnitude == 0 {
		result := make([]float32, len(v))
		return result
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// meanPool averages vectors element-wise.
func meanPool(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, errEmptyPool
	}

	dim := len(vectors[0])
	totals := make([]float64, dim)
	for _, vector := range vectors {
		if len(vector) != dim {
			return nil, errDimMismatch
		}
		for i, value := range vector {
			totals[i] += float64(value)
		}
	}

	scale := 1.0 / float64(len(vectors))
	result := make([]float32, dim)
	for i, total := range totals {
		result[i] = float32(total * scale)
	}
	return result, nil
}

// weightedMeanPool averages vectors element-wise with per-vector
// weights. Non-positive weights are skipped.
func weightedMeanPool(vectors [][]float32, weights []int) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, errEmptyPool
	}
	if len(vectors) != len(weights) {
		return nil, errors.New("vectors and weights must share the same length")
	}

	dim := len(vectors[0])
	totals := make([]float64, dim)
	totalWeight := 0.0
	for vi, vector := range vectors {
		if len(vector) != dim {
			return nil, errDimMismatch
		}
		weight := float64(weights[vi])
		if weight <= 0 {
			continue
		}
		totalWeight += weight
		for i, value := range vector {
			totals[i] += float64(value) * weight
		}
	}

	if totalWeight <= 0 {
		return nil, errZeroPoolWeight
	}

	scale := 1.0 / totalWeight
	result := make([]float32, dim)
	for i, total := range totals {
		result[i] = float32(total * scale)
	}
	return result, nil
}
