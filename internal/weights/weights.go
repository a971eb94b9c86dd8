// Package weights provides distance-decay weight functions for
// catchment aggregation: step, gaussian, and gravity forms, plus any
// caller-supplied pure function of cost.
package weights

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Fn maps a scalar travel cost to a non-negative multiplier. The
// engines are agnostic to the specific form; a nil Fn means identity.
type Fn func(cost float64) float64

// Step builds a step function from threshold → weight cutoffs. An
// input at or below a threshold takes that threshold's weight (lowest
// matching threshold wins); inputs beyond the largest threshold weigh
// zero. Negative weights and empty maps are construction errors.
func Step(thresholds map[float64]float64) (Fn, error) {
	if len(thresholds) == 0 {
		return nil, eris.New("weights: step thresholds must not be empty")
	}

	cuts := make([]float64, 0, len(thresholds))
	for k, v := range thresholds {
		if v < 0 {
			return nil, eris.Errorf("weights: step weight for threshold %g is negative", k)
		}
		cuts = append(cuts, k)
	}
	sort.Float64s(cuts)

	return func(cost float64) float64 {
		for _, k := range cuts {
			if cost <= k {
				return thresholds[k]
			}
		}
		return 0
	}, nil
}

// Gaussian builds exp(-x²/2σ²). The usual 1/√(2πσ²) normalization is
// not applied, so f(0) = 1 for any sigma. Zero sigma is a construction
// error.
func Gaussian(sigma float64) (Fn, error) {
	if sigma == 0 {
		return nil, eris.New("weights: gaussian sigma must be non-zero")
	}
	return func(cost float64) float64 {
		return math.Exp(-cost * cost / (2 * sigma * sigma))
	}, nil
}

// Gravity builds (max(x, minDist)/scale)^alpha. The minimum distance
// caps the infinite potential at zero cost; alpha is not implicitly
// negated.
func Gravity(scale, alpha, minDist float64) (Fn, error) {
	if scale == 0 {
		return nil, eris.New("weights: gravity scale must be non-zero")
	}
	return func(cost float64) float64 {
		return math.Pow(math.Max(cost, minDist)/scale, alpha)
	}, nil
}

// StepE2SFCA returns the canonical enhanced-2SFCA step weights from
// Luo and Qi: ≤10 → 1.0, ≤20 → 0.68, ≤30 → 0.22.
func StepE2SFCA() Fn {
	fn, err := Step(map[float64]float64{10: 1.0, 20: 0.68, 30: 0.22})
	if err != nil {
		panic(err) // static table
	}
	return fn
}

// Step3SFCA returns the canonical three-stage step weights from Wan,
// Zou and Sternberg: ≤10 → 0.962, ≤20 → 0.704, ≤30 → 0.377, ≤60 → 0.042.
func Step3SFCA() Fn {
	fn, err := Step(map[float64]float64{10: 0.962, 20: 0.704, 30: 0.377, 60: 0.042})
	if err != nil {
		panic(err) // static table
	}
	return fn
}
