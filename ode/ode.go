// Package ode is a ordinary differential equation library that implements the
// Runge-Kutta methods https://en.wikipedia.org/wiki/Runge–Kutta_methods.
// It integrates continuous time dynamics over one sampling period so they can
// serve as the stage transition of a discrete decision problem.
package ode

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the adaptive step size control can't meet
// the error tolerance.
var ErrNoConvergence = errors.New("ode: adaptive Runge-Kutta doesn't converge")

// maxNumberOfHalvings bounds the step size reductions of AdaptiveStep.
const maxNumberOfHalvings = 60

// DifferentiableSystem returns x'(t) = f(t, x(t)).
type DifferentiableSystem interface {
	Derivative(t float64, state mat.Vector) mat.Vector
}

// SystemFunc adapts a function to a DifferentiableSystem.
type SystemFunc func(t float64, state mat.Vector) mat.Vector

func (f SystemFunc) Derivative(t float64, state mat.Vector) mat.Vector {
	return f(t, state)
}

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// Stages returns the number of derivative evaluations per step.
func (rk RungeKutta) Stages() int {
	return rk.Description.stages
}

// Adaptive reports whether the tableau carries an embedded error estimate.
func (rk RungeKutta) Adaptive() bool {
	return len(rk.Description.weights) == 2
}

// Step computes a single Runge-Kutta step from t = from to t = to starting in
// value. It returns the new state and the local error estimate, which is the
// zero vector for tableaus without an embedded lower order solution.
func (rk RungeKutta) Step(from, to float64, value mat.Vector, system DifferentiableSystem) (*mat.VecDense, *mat.VecDense) {
	M := value.Len()
	// The precomputed derivative points
	K := make([]mat.Vector, rk.Description.stages)
	// Step length
	h := to - from

	for index := range K {
		// Compute the relevant vector by combining previously computed derivate points
		// according to Butcher Tableau.
		tempV := mat.VecDenseCopyOf(value)
		for index2, a := range rk.Description.rungeKuttaMatrix[index] {
			tempV.AddScaledVec(tempV, h*a, K[index2])
		}
		K[index] = system.Derivative(from+h*rk.Description.nodes[index], tempV)
	}

	res := mat.NewVecDense(M, nil)
	res.CloneFromVec(value)
	// Initialize the error vector
	errVec := mat.NewVecDense(M, nil)
	// Sum up the different contributions with relevant weights.
	for index, k := range K {
		res.AddScaledVec(res, h*rk.Description.weights[0][index], k)
		// If the Butcher Tableau allows for adaptive error computation
		if rk.Adaptive() {
			errVec.AddScaledVec(errVec, h*(rk.Description.weights[1][index]-rk.Description.weights[0][index]), k)
		}
	}
	return res, errVec
}

// Integrate takes n equidistant steps from t = from to t = to.
func (rk RungeKutta) Integrate(from, to float64, n int, value mat.Vector, system DifferentiableSystem) *mat.VecDense {
	if n < 1 {
		n = 1
	}
	h := (to - from) / float64(n)
	state := mat.VecDenseCopyOf(value)
	for step := 0; step < n; step++ {
		t0 := from + float64(step)*h
		state, _ = rk.Step(t0, t0+h, state, system)
	}
	return state
}

// AdaptiveStep implements an adaptive version which for a
// given error tolerance tol makes as many steps as needed such that the local
// error never exceeds the error specification.
func (rk RungeKutta) AdaptiveStep(from, to, tol float64, value mat.Vector, system DifferentiableSystem) (*mat.VecDense, error) {
	if !rk.Adaptive() {
		return nil, fmt.Errorf("ode: %d-stage tableau has no error estimate", rk.Description.stages)
	}
	var (
		tnow, tnext float64
		count       int
	)
	tnow = from
	state := mat.VecDenseCopyOf(value)

	// Repeat until time to is reached
	for tnow < to {
		tnext = to
		count = 0
		for {
			candidate, errVec := rk.Step(tnow, tnext, state, system)
			currentError := 0.
			for index := 0; index < errVec.Len(); index++ {
				currentError += math.Abs(errVec.AtVec(index))
			}
			if currentError < tol {
				state = candidate
				break
			}
			// Half the next integration interval and try again
			tnext = (tnext-tnow)/2. + tnow
			count++
			if count >= maxNumberOfHalvings || tnext <= tnow {
				return nil, fmt.Errorf("%w: error %v above %v at t=%v", ErrNoConvergence, currentError, tol, tnow)
			}
		}
		tnow = tnext
	}
	return state, nil
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	var temp butcherTableau
	temp.stages = 4
	temp.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	temp.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	rk := RungeKutta{temp}
	return &rk
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	var temp butcherTableau
	temp.stages = 1
	temp.nodes = []float64{0}
	temp.weights = [][]float64{{1}}
	temp.rungeKuttaMatrix = [][]float64{nil}
	rk := RungeKutta{temp}
	return &rk
}

// butcherTableau which describes the approximate solution, see https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          [][]float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// NewFehlberg45 implements https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method
func NewFehlberg45() *RungeKutta {
	var temp butcherTableau
	temp.stages = 6
	temp.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	temp.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	rk := RungeKutta{temp}
	return &rk
}
