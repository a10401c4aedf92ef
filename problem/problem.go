// Package problem defines the decision problem consumed by the cost-to-go
// core, together with a few ready made problems.
//
// A Problem is immutable and is only ever read: its stage costs and dynamics
// are pure functions of their arguments.
package problem

import (
	"errors"

	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidProblem is returned by constructors given inconsistent data.
var ErrInvalidProblem = errors.New("problem: invalid problem")

// Problem describes a finite horizon decision problem.
//
// StageCost receives the history available at stage: its last element is the
// step at stage, earlier elements are the steps before it. A Markovian
// evaluation hands over a one element history.
type Problem interface {
	trajectory.Dynamics
	HorizonLength() int
	StageCost(stage int, history trajectory.Trajectory) float64
}

// Current returns the step a stage cost is evaluated at.
func Current(history trajectory.Trajectory) trajectory.Step {
	return history[len(history)-1]
}

// Prior returns the steps preceding the current one.
func Prior(history trajectory.Trajectory) trajectory.Trajectory {
	return history[:len(history)-1]
}

// Func adapts plain functions to a Problem.
type Func struct {
	Horizon int
	Cost    func(stage int, history trajectory.Trajectory) float64
	// Transition is the state update. A nil Transition holds the state.
	Transition func(state, control mat.Vector) mat.Vector
}

func (f Func) HorizonLength() int {
	return f.Horizon
}

func (f Func) StageCost(stage int, history trajectory.Trajectory) float64 {
	return f.Cost(stage, history)
}

func (f Func) Dynamics(state, control mat.Vector) mat.Vector {
	if f.Transition == nil {
		return mat.VecDenseCopyOf(state)
	}
	return f.Transition(state, control)
}

// ControlEnergy returns the problem with stage cost |u(k)|^2 and a held
// state.
func ControlEnergy(horizon int) Func {
	return Func{
		Horizon: horizon,
		Cost: func(_ int, history trajectory.Trajectory) float64 {
			u := Current(history).Control
			return mat.Dot(u, u)
		},
	}
}

// WithHistoryPenalty makes base non-Markovian by adding
//
// weight * sum_{r < stage} sum_i u(r)_i
//
// to its stage cost.
func WithHistoryPenalty(base Problem, weight float64) Problem {
	return historyPenalty{Problem: base, weight: weight}
}

type historyPenalty struct {
	Problem
	weight float64
}

func (h historyPenalty) StageCost(stage int, history trajectory.Trajectory) float64 {
	var sum float64
	for _, step := range Prior(history) {
		sum += mat.Sum(step.Control)
	}
	return h.Problem.StageCost(stage, history) + h.weight*sum
}

// TerminalValue approximates the cost beyond the horizon from the last control
// and the state it is applied in. A partially input-convex mapping keeps the
// last stage convex in its control.
type TerminalValue interface {
	Value(control, state mat.Vector) float64
}

// WithTerminalValue adds tail to the stage cost of the last stage of base.
func WithTerminalValue(base Problem, tail TerminalValue) Problem {
	return terminalValue{Problem: base, tail: tail}
}

type terminalValue struct {
	Problem
	tail TerminalValue
}

func (tv terminalValue) StageCost(stage int, history trajectory.Trajectory) float64 {
	cost := tv.Problem.StageCost(stage, history)
	if stage == tv.HorizonLength()-1 {
		step := Current(history)
		cost += tv.tail.Value(step.Control, step.State)
	}
	return cost
}
