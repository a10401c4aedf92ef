// Package ssm provides the state space models used as problem dynamics.
package ssm

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when system matrices don't agree in size.
var ErrDimensionMismatch = errors.New("ssm: system parameters don't match")

// StateSpaceModel interface has two parts:
//
// 1) The f function which returns the differential state evaluated at
// state x(t) and the input u(t).
//
// 2) The observation y(t) = g(x(t)).
type StateSpaceModel interface {
	// This is the derivative of the state
	Derivative(state, input mat.Vector) mat.Vector
	// This is the observedState
	Observation(state mat.Vector) mat.Vector
	// Returns the state space order
	StateSpaceOrder() int
	// Returns the observation space order.
	ObservationSpaceOrder() int
	// Returns the input space Order
	InputSpaceOrder() int
}

func checkVector(v mat.Vector, n int, what string) {
	if v.Len() != n {
		panic(errors.New(what + " vector doesn't match system order"))
	}
}
