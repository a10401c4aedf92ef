package signal

import (
	"gonum.org/v1/gonum/mat"
)

// VectorFunction is a signal abstraction that instead of returning
// a scalar associates each argument with a vector valued output. For instance
// the reference
// r(t) = B U(t)
// is decomposed as a scalar function U(t)-> Reals and a vector B \in Reals^N.
type VectorFunction struct {
	U func(float64) float64
	B mat.Vector
}

// Value returns the vectorial function value
func (vf VectorFunction) Value(t float64) mat.Vector {
	var res mat.VecDense
	res.CloneFromVec(vf.B)
	res.ScaleVec(vf.U(t), &res)
	return &res
}

// Len returns the dimension of the output.
func (vf VectorFunction) Len() int {
	return vf.B.Len()
}

// NewInput returns a new VectorFunction object
// initalised with u(t) and B
func NewInput(u func(float64) float64, B mat.Vector) VectorFunction {
	return VectorFunction{u, B}
}

// Constant returns the time invariant signal r(t) = B.
func Constant(B mat.Vector) VectorFunction {
	return NewInput(func(float64) float64 { return 1 }, B)
}

// Step returns r(t) = B for t >= t0 and zero before.
func Step(t0 float64, B mat.Vector) VectorFunction {
	return NewInput(func(t float64) float64 {
		if t < t0 {
			return 0
		}
		return 1
	}, B)
}
