// Package signal provides time dependent vector signals, used as reference
// trajectories for tracking costs.
package signal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Signal holds the signal interface
type Signal interface {
	Value(float64) mat.Vector
}

// Sample evaluates sig at the sample instant k*ts.
func Sample(sig Signal, ts float64, k int) mat.Vector {
	return sig.Value(float64(k) * ts)
}

// Sinusoid returns r(t) = B sin(2 pi f t + phase).
func Sinusoid(frequency, phase float64, B mat.Vector) VectorFunction {
	return NewInput(func(t float64) float64 {
		return math.Sin(2*math.Pi*frequency*t + phase)
	}, B)
}
