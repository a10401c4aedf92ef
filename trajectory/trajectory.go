// Package trajectory holds the ordered (state, control) sequences over which
// cost-to-go is evaluated.
//
// A Trajectory is owned by the caller. Sub-slicing it, t[:s+1], is how the
// history prefix of stage s is handed to a cost function; no data is copied.
package trajectory

import (
	"errors"
	"fmt"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLengthMismatch is returned when states and controls differ in length.
	ErrLengthMismatch = errors.New("trajectory: states and controls differ in length")
	// ErrInvalidStep is returned by Validate for a missing, non-finite or
	// misshapen state or control.
	ErrInvalidStep = errors.New("trajectory: invalid step")
)

// Dynamics maps a state and a control to the next state
//
// x(k+1) = f(x(k), u(k))
type Dynamics interface {
	Dynamics(state, control mat.Vector) mat.Vector
}

// Step is a single (state, control) pair.
type Step struct {
	State   *mat.VecDense
	Control *mat.VecDense
}

// Trajectory is an ordered sequence of steps, indexed by stage.
type Trajectory []Step

// New pairs states[k] with controls[k].
func New(states, controls []*mat.VecDense) (Trajectory, error) {
	if len(states) != len(controls) {
		return nil, fmt.Errorf("%w: %d states, %d controls", ErrLengthMismatch, len(states), len(controls))
	}
	t := make(Trajectory, len(states))
	for k := range t {
		t[k] = Step{State: states[k], Control: controls[k]}
	}
	return t, nil
}

// FromControls rolls out a trajectory starting at x0 under the given controls.
// State k+1 is dyn.Dynamics(state k, control k); the state following the last
// control is not stored.
func FromControls(x0 mat.Vector, controls []*mat.VecDense, dyn Dynamics) Trajectory {
	t := make(Trajectory, len(controls))
	state := mat.VecDenseCopyOf(x0)
	for k, u := range controls {
		t[k] = Step{State: state, Control: u}
		if k+1 < len(controls) {
			state = mat.VecDenseCopyOf(dyn.Dynamics(state, u))
		}
	}
	return t
}

// Scalars builds a trajectory with one-dimensional controls and zero
// one-dimensional states.
func Scalars(controls ...float64) Trajectory {
	t := make(Trajectory, len(controls))
	for k, u := range controls {
		t[k] = Step{
			State:   mat.NewVecDense(1, nil),
			Control: mat.NewVecDense(1, []float64{u}),
		}
	}
	return t
}

// Len returns the number of stages.
func (t Trajectory) Len() int {
	return len(t)
}

// Clone returns a deep copy of the trajectory.
func (t Trajectory) Clone() Trajectory {
	res := make(Trajectory, len(t))
	for k, step := range t {
		if step.State != nil {
			res[k].State = mat.VecDenseCopyOf(step.State)
		}
		if step.Control != nil {
			res[k].Control = mat.VecDenseCopyOf(step.Control)
		}
	}
	return res
}

// Controls returns the control vectors. The vectors are shared with t.
func (t Trajectory) Controls() []*mat.VecDense {
	res := make([]*mat.VecDense, len(t))
	for k := range t {
		res[k] = t[k].Control
	}
	return res
}

// States returns the state vectors. The vectors are shared with t.
func (t Trajectory) States() []*mat.VecDense {
	res := make([]*mat.VecDense, len(t))
	for k := range t {
		res[k] = t[k].State
	}
	return res
}

// Rollout recomputes the states of stages from+1 .. len(t)-1 in place from the
// state at stage from and the stored controls.
func (t Trajectory) Rollout(dyn Dynamics, from int) {
	if from < 0 {
		from = 0
	}
	for k := from; k+1 < len(t); k++ {
		next := dyn.Dynamics(t[k].State, t[k].Control)
		if t[k+1].State == nil || t[k+1].State.Len() != next.Len() {
			t[k+1].State = mat.VecDenseCopyOf(next)
			continue
		}
		t[k+1].State.CopyVec(next)
	}
}

// Validate checks that every step carries a finite state and control and
// that dimensions agree across stages.
func (t Trajectory) Validate() error {
	if len(t) == 0 {
		return nil
	}
	n, m := -1, -1
	for k, step := range t {
		if step.State == nil || step.Control == nil {
			return fmt.Errorf("%w: stage %d is missing a state or control", ErrInvalidStep, k)
		}
		if gonumExtensions.NANORINF(step.State) || gonumExtensions.NANORINF(step.Control) {
			return fmt.Errorf("%w: stage %d is not finite", ErrInvalidStep, k)
		}
		if n < 0 {
			n, m = step.State.Len(), step.Control.Len()
			continue
		}
		if step.State.Len() != n || step.Control.Len() != m {
			return fmt.Errorf("%w: stage %d has dimensions (%d, %d), expected (%d, %d)",
				ErrInvalidStep, k, step.State.Len(), step.Control.Len(), n, m)
		}
	}
	return nil
}
