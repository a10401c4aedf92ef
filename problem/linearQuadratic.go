package problem

import (
	"fmt"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/signal"
	"github.com/rwlmu/ml-adp/ssm"
	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/mat"
)

// LinearQuadratic is the discrete time problem
//
// x(k+1) = Ad x(k) + Bd u(k)
//
// with stage cost x(k)' Q x(k) + u(k)' R u(k). When Qf is set the last stage
// additionally pays x(K)' Qf x(K) for the state reached after the horizon.
type LinearQuadratic struct {
	Model   *ssm.DiscreteModel
	Q, R    mat.Matrix
	Qf      mat.Matrix
	Horizon int
}

// NewLinearQuadratic checks the weights against the model. Qf may be nil.
func NewLinearQuadratic(model *ssm.DiscreteModel, Q, R, Qf mat.Matrix, horizon int) (*LinearQuadratic, error) {
	n, m := model.StateSpaceOrder(), model.InputSpaceOrder()
	if err := checkSquare("Q", Q, n); err != nil {
		return nil, err
	}
	if err := checkSquare("R", R, m); err != nil {
		return nil, err
	}
	if Qf != nil {
		if err := checkSquare("Qf", Qf, n); err != nil {
			return nil, err
		}
	}
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon %d", ErrInvalidProblem, horizon)
	}
	return &LinearQuadratic{Model: model, Q: Q, R: R, Qf: Qf, Horizon: horizon}, nil
}

func (lq *LinearQuadratic) HorizonLength() int {
	return lq.Horizon
}

func (lq *LinearQuadratic) Dynamics(state, control mat.Vector) mat.Vector {
	return lq.Model.Dynamics(state, control)
}

func (lq *LinearQuadratic) StageCost(stage int, history trajectory.Trajectory) float64 {
	step := Current(history)
	cost := gonumExtensions.QuadraticForm(step.State, lq.Q) + gonumExtensions.QuadraticForm(step.Control, lq.R)
	if lq.Qf != nil && stage == lq.Horizon-1 {
		terminal := lq.Model.Dynamics(step.State, step.Control)
		cost += gonumExtensions.QuadraticForm(terminal, lq.Qf)
	}
	return cost
}

// Tracking penalises the distance between the observation C x(k) and a
// reference sampled at k Ts:
//
// e(k)' Q e(k) + u(k)' R u(k),  e(k) = C x(k) - r(k Ts)
type Tracking struct {
	Model     *ssm.DiscreteModel
	Reference signal.Signal
	Q, R      mat.Matrix
	Ts        float64
	Horizon   int
}

// NewTracking checks the weights against the model. A zero ts falls back to
// the sampling period of the model.
func NewTracking(model *ssm.DiscreteModel, reference signal.Signal, Q, R mat.Matrix, ts float64, horizon int) (*Tracking, error) {
	if err := checkSquare("Q", Q, model.ObservationSpaceOrder()); err != nil {
		return nil, err
	}
	if err := checkSquare("R", R, model.InputSpaceOrder()); err != nil {
		return nil, err
	}
	if ts == 0 {
		ts = model.Ts
	}
	if ts <= 0 || horizon < 1 {
		return nil, fmt.Errorf("%w: sampling period %v, horizon %d", ErrInvalidProblem, ts, horizon)
	}
	return &Tracking{Model: model, Reference: reference, Q: Q, R: R, Ts: ts, Horizon: horizon}, nil
}

func (tr *Tracking) HorizonLength() int {
	return tr.Horizon
}

func (tr *Tracking) Dynamics(state, control mat.Vector) mat.Vector {
	return tr.Model.Dynamics(state, control)
}

func (tr *Tracking) StageCost(stage int, history trajectory.Trajectory) float64 {
	step := Current(history)
	var e mat.VecDense
	e.SubVec(tr.Model.Observation(step.State), signal.Sample(tr.Reference, tr.Ts, stage))
	return gonumExtensions.QuadraticForm(&e, tr.Q) + gonumExtensions.QuadraticForm(step.Control, tr.R)
}

func checkSquare(name string, M mat.Matrix, n int) error {
	r, c := M.Dims()
	if r != n || c != n {
		return fmt.Errorf("%w: %s is %dx%d, expected %dx%d", ErrInvalidProblem, name, r, c, n, n)
	}
	return nil
}
