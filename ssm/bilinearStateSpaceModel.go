package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BiLinearStateSpaceModel represents the system
//
// x'(t) = AL x(t) + B u(t) + AB Vec(x(t)u(t)^T)
//
// y(t) = C x(t)
//
// where Vec stacks the columns of the N x M outer product, so AB is
// N x (N M).
type BiLinearStateSpaceModel struct {
	// Linear State Dynamics
	AL mat.Matrix
	// Input matrix
	B mat.Matrix
	// Bi-linear State Dynamics
	AB mat.Matrix
	// Observation matrix
	C mat.Matrix
}

// NewBiLinearStateSpaceModel checks the dimensions of a bilinear system.
func NewBiLinearStateSpaceModel(AL, B, AB, C mat.Matrix) (*BiLinearStateSpaceModel, error) {
	n, nn := AL.Dims()
	mB, m := B.Dims()
	mAB, nAB := AB.Dims()
	_, nC := C.Dims()
	if n != nn || mB != n || mAB != n || nAB != n*m || nC != n {
		return nil, fmt.Errorf("%w: bilinear model with AL %dx%d, B %dx%d, AB %dx%d", ErrDimensionMismatch, n, nn, mB, m, mAB, nAB)
	}
	return &BiLinearStateSpaceModel{AL, B, AB, C}, nil
}

// Derivative returns the state derivative.
func (model BiLinearStateSpaceModel) Derivative(state, input mat.Vector) mat.Vector {
	n := model.StateSpaceOrder()
	checkVector(state, n, "State")
	checkVector(input, model.InputSpaceOrder(), "Input")

	var (
		res      mat.VecDense
		tmpInput mat.VecDense
	)
	res.MulVec(model.AL, state)
	tmpInput.MulVec(model.B, input)
	res.AddVec(&res, &tmpInput)

	// Column j of x u^T is u_j x, so AB Vec(x u^T) = sum_j u_j AB_j x
	// with AB_j the j-th N x N block of AB.
	for j := 0; j < input.Len(); j++ {
		uj := input.AtVec(j)
		if uj == 0 {
			continue
		}
		for row := 0; row < n; row++ {
			var sum float64
			for col := 0; col < n; col++ {
				sum += model.AB.At(row, j*n+col) * state.AtVec(col)
			}
			res.SetVec(row, res.AtVec(row)+uj*sum)
		}
	}
	return &res
}

// Observation returns the observed state
// y(t) = C x(t)
func (model BiLinearStateSpaceModel) Observation(state mat.Vector) mat.Vector {
	checkVector(state, model.StateSpaceOrder(), "State")
	var res mat.VecDense
	res.MulVec(model.C, state)
	return &res
}

func (model BiLinearStateSpaceModel) StateSpaceOrder() int {
	m, _ := model.AL.Dims()
	return m
}

func (model BiLinearStateSpaceModel) ObservationSpaceOrder() int {
	m, _ := model.C.Dims()
	return m
}

func (model BiLinearStateSpaceModel) InputSpaceOrder() int {
	_, n := model.B.Dims()
	return n
}
