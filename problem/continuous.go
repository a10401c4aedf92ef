package problem

import (
	"fmt"
	"math"

	"github.com/rwlmu/ml-adp/ode"
	"github.com/rwlmu/ml-adp/ssm"
	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/mat"
)

const defaultIntegrationSteps = 10

// Continuous samples a continuous time model x'(t) = f(x(t), u(t)). The
// control is held constant over each period Ts and the state is propagated
// with a Runge-Kutta method.
//
// With a positive Tolerance and an adaptive Integrator, such as Fehlberg 4(5),
// each period is integrated with step size control instead of Steps
// equidistant steps. A period that can't meet the tolerance yields a NaN
// state, which the cost-to-go reports as a non-finite cost.
type Continuous struct {
	Model      ssm.StateSpaceModel
	Ts         float64
	Horizon    int
	Cost       func(stage int, history trajectory.Trajectory) float64
	Integrator *ode.RungeKutta
	// Equidistant integration steps per period.
	Steps int
	// Local error bound of adaptive integration, zero disables it.
	Tolerance float64
}

// NewContinuous returns a Continuous problem integrated with RK4.
func NewContinuous(model ssm.StateSpaceModel, ts float64, horizon int, cost func(int, trajectory.Trajectory) float64) (*Continuous, error) {
	if ts <= 0 || horizon < 1 || cost == nil {
		return nil, fmt.Errorf("%w: continuous problem with period %v and horizon %d", ErrInvalidProblem, ts, horizon)
	}
	return &Continuous{
		Model:      model,
		Ts:         ts,
		Horizon:    horizon,
		Cost:       cost,
		Integrator: ode.NewRK4(),
		Steps:      defaultIntegrationSteps,
	}, nil
}

func (c *Continuous) HorizonLength() int {
	return c.Horizon
}

func (c *Continuous) StageCost(stage int, history trajectory.Trajectory) float64 {
	return c.Cost(stage, history)
}

// Dynamics integrates the model over one period with the control held.
func (c *Continuous) Dynamics(state, control mat.Vector) mat.Vector {
	held := ode.SystemFunc(func(_ float64, x mat.Vector) mat.Vector {
		return c.Model.Derivative(x, control)
	})
	if c.Tolerance > 0 && c.Integrator.Adaptive() {
		next, err := c.Integrator.AdaptiveStep(0, c.Ts, c.Tolerance, state, held)
		if err != nil {
			next = mat.NewVecDense(state.Len(), nil)
			for i := 0; i < next.Len(); i++ {
				next.SetVec(i, math.NaN())
			}
		}
		return next
	}
	return c.Integrator.Integrate(0, c.Ts, c.Steps, state, held)
}
