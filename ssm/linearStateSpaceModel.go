package ssm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearStateSpaceModel struct represent the system
//
// x'(t) = A x(t) + B u(t)
//
// y(t) = C x(t)
type LinearStateSpaceModel struct {
	// State Dynamics
	A mat.Matrix
	// Input matrix
	B mat.Matrix
	// Observation matrix
	C mat.Matrix
}

// NewIntegratorChain returns a linear state space model of an integrator chain
// of size N where the single input drives the first integrator.
func NewIntegratorChain(N int, stageGain float64) *LinearStateSpaceModel {
	a := make([]float64, N*N)
	c := make([]float64, N)
	stride := N
	for row := 0; row < N; row++ {
		c[row] = 1
		for column := 0; column < N; column++ {
			if row == (column + 1) {
				a[row*stride+column] = stageGain
			}
		}
	}
	b := make([]float64, N)
	b[0] = stageGain
	return &LinearStateSpaceModel{
		A: mat.NewDense(N, N, a),
		B: mat.NewDense(N, 1, b),
		C: mat.NewDense(1, N, c),
	}
}

// NewLinearStateSpaceModel creates a new Linear state space model
func NewLinearStateSpaceModel(A, B, C mat.Matrix) (*LinearStateSpaceModel, error) {
	// Check that system parameters match
	m, n := A.Dims()
	mB, _ := B.Dims()
	_, nC := C.Dims()
	if m != n || mB != m || nC != m {
		return nil, fmt.Errorf("%w: A is %dx%d, B has %d rows, C has %d columns", ErrDimensionMismatch, m, n, mB, nC)
	}
	return &LinearStateSpaceModel{A, B, C}, nil
}

// Derivative returns the state derivative.
// x'(t) = Ax(t) + Bu(t)
func (model LinearStateSpaceModel) Derivative(state, input mat.Vector) mat.Vector {
	var (
		tmpState mat.VecDense
		tmpInput mat.VecDense
	)
	checkVector(state, model.StateSpaceOrder(), "State")
	checkVector(input, model.InputSpaceOrder(), "Input")

	tmpState.MulVec(model.A, state)
	tmpInput.MulVec(model.B, input)
	tmpInput.AddVec(&tmpState, &tmpInput)
	return &tmpInput
}

// Observation returns the observed state
// y(t) = C x(t)
func (model LinearStateSpaceModel) Observation(state mat.Vector) mat.Vector {
	checkVector(state, model.StateSpaceOrder(), "State")
	mC, _ := model.C.Dims()
	res := mat.NewVecDense(mC, nil)
	res.MulVec(model.C, state)
	return res
}

// Discretize returns the zero order hold equivalent of the model for a
// sampling period ts. The input is held constant over each period:
//
// x(k+1) = Ad x(k) + Bd u(k)
//
// with Ad = e^(A ts) and Bd = int_0^ts e^(A t) dt B, both read off the
// exponential of the augmented matrix [A B; 0 0] ts.
func (model LinearStateSpaceModel) Discretize(ts float64) (*DiscreteModel, error) {
	if ts <= 0 {
		return nil, fmt.Errorf("ssm: sampling period must be positive, got %v", ts)
	}
	n := model.StateSpaceOrder()
	m := model.InputSpaceOrder()

	augmented := mat.NewDense(n+m, n+m, nil)
	augmented.Slice(0, n, 0, n).(*mat.Dense).Copy(model.A)
	augmented.Slice(0, n, n, n+m).(*mat.Dense).Copy(model.B)
	augmented.Scale(ts, augmented)

	var phi mat.Dense
	phi.Exp(augmented)

	Ad := mat.DenseCopyOf(phi.Slice(0, n, 0, n))
	Bd := mat.DenseCopyOf(phi.Slice(0, n, n, n+m))
	return &DiscreteModel{Ad: Ad, Bd: Bd, C: model.C, Ts: ts}, nil
}

func (model LinearStateSpaceModel) StateSpaceOrder() int {
	m, _ := model.A.Dims()
	return m
}

func (model LinearStateSpaceModel) ObservationSpaceOrder() int {
	m, _ := model.C.Dims()
	return m
}

func (model LinearStateSpaceModel) InputSpaceOrder() int {
	_, n := model.B.Dims()
	return n
}
