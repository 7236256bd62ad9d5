// Package weights holds the vector arithmetic behind prioritized replay:
// priority exponentiation, importance-sampling correction and placement of the
// resulting weight vectors on a compute device.
package weights

import (
	"errors"
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// ErrInvalidPriority is returned for negative, NaN or infinite priorities.
var ErrInvalidPriority = errors.New("priority must be finite and non-negative")

// Validate checks that every priority is finite and non-negative.
func Validate(priorities []float32) error {
	for i, p := range priorities {
		f := float64(p)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("weights: %w: index %d is %v", ErrInvalidPriority, i, p)
		}
	}
	return nil
}

// FromPriorities validates priorities and returns priority^alpha elementwise.
func FromPriorities(priorities []float32, alpha float32) ([]float32, error) {
	if err := Validate(priorities); err != nil {
		return nil, err
	}
	if len(priorities) == 0 {
		return []float32{}, nil
	}

	backing := make([]float32, len(priorities))
	copy(backing, priorities)
	t := tensor.New(tensor.WithShape(len(backing)), tensor.WithBacking(backing))

	out, err := tensor.Pow(t, alpha)
	if err != nil {
		return nil, fmt.Errorf("weights: pow: %w", err)
	}
	return out.Data().([]float32), nil
}

// Importance turns the sampled weights into importance-sampling corrections
// (N * w/sum)^-beta, normalized so the largest correction is exactly 1.
func Importance(sampled []float32, sum float64, population int, beta float32) (*tensor.Dense, error) {
	if len(sampled) == 0 {
		return nil, errors.New("weights: importance of an empty sample")
	}
	if sum <= 0 || population <= 0 {
		return nil, fmt.Errorf("weights: importance over sum %v and population %d", sum, population)
	}

	backing := make([]float32, len(sampled))
	copy(backing, sampled)
	t := tensor.New(tensor.WithShape(len(backing)), tensor.WithBacking(backing))

	probs, err := tensor.Div(t, float32(sum))
	if err != nil {
		return nil, fmt.Errorf("weights: normalize: %w", err)
	}
	scaled, err := tensor.Mul(probs, float32(population))
	if err != nil {
		return nil, fmt.Errorf("weights: scale: %w", err)
	}
	corrected, err := tensor.Pow(scaled, -beta)
	if err != nil {
		return nil, fmt.Errorf("weights: pow: %w", err)
	}

	peak := maxOf(corrected.Data().([]float32))
	if peak <= 0 || math.IsInf(float64(peak), 0) || math.IsNaN(float64(peak)) {
		return nil, fmt.Errorf("weights: degenerate importance maximum %v", peak)
	}
	normalized, err := tensor.Div(corrected, peak)
	if err != nil {
		return nil, fmt.Errorf("weights: rescale: %w", err)
	}
	return asDense(normalized)
}

// Uniform returns a vector of n ones. A zero-length request yields nil.
func Uniform(n int) *tensor.Dense {
	if n <= 0 {
		return nil
	}
	backing := make([]float32, n)
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(backing))
}

// Float32s returns the backing values of a weight vector; nil yields nil.
func Float32s(t *tensor.Dense) []float32 {
	if t == nil {
		return nil
	}
	return t.Data().([]float32)
}

func maxOf(values []float32) float32 {
	peak := float32(math.Inf(-1))
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	return peak
}

func asDense(t tensor.Tensor) (*tensor.Dense, error) {
	d, ok := t.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("weights: unexpected tensor type %T", t)
	}
	return d, nil
}
