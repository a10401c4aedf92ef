package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DiscreteModel is the sampled system
//
// x(k+1) = Ad x(k) + Bd u(k)
//
// y(k) = C x(k)
type DiscreteModel struct {
	Ad mat.Matrix
	Bd mat.Matrix
	C  mat.Matrix
	// Sampling period, zero when the model was given in discrete time directly.
	Ts float64
}

// NewDiscreteModel checks the dimensions of a discrete time system.
func NewDiscreteModel(Ad, Bd, C mat.Matrix) (*DiscreteModel, error) {
	m, n := Ad.Dims()
	mB, _ := Bd.Dims()
	_, nC := C.Dims()
	if m != n || mB != m || nC != m {
		return nil, fmt.Errorf("%w: Ad is %dx%d, Bd has %d rows, C has %d columns", ErrDimensionMismatch, m, n, mB, nC)
	}
	return &DiscreteModel{Ad: Ad, Bd: Bd, C: C}, nil
}

// Dynamics returns the next state Ad x + Bd u.
func (model DiscreteModel) Dynamics(state, control mat.Vector) mat.Vector {
	checkVector(state, model.StateSpaceOrder(), "State")
	checkVector(control, model.InputSpaceOrder(), "Control")
	var next, input mat.VecDense
	next.MulVec(model.Ad, state)
	input.MulVec(model.Bd, control)
	next.AddVec(&next, &input)
	return &next
}

// Observation returns y = C x.
func (model DiscreteModel) Observation(state mat.Vector) mat.Vector {
	checkVector(state, model.StateSpaceOrder(), "State")
	var res mat.VecDense
	res.MulVec(model.C, state)
	return &res
}

func (model DiscreteModel) StateSpaceOrder() int {
	m, _ := model.Ad.Dims()
	return m
}

func (model DiscreteModel) ObservationSpaceOrder() int {
	m, _ := model.C.Dims()
	return m
}

func (model DiscreteModel) InputSpaceOrder() int {
	_, n := model.Bd.Dims()
	return n
}
