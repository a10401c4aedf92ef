package costtogo

import (
	"fmt"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/problem"
	"github.com/rwlmu/ml-adp/trajectory"
)

// Slice is a view of a CostToGo over the stages [Start(), End()).
//
// There are two implementations. A Markovian slice holds the problem and its
// bounds only. A non-Markovian slice holds the root CostToGo, through which
// the problem and the full horizon length are reached.
type Slice interface {
	Start() int
	End() int
	Len() int
	Markovian() bool
	Problem() problem.Problem

	// Slice re-slices relative to Start(): the result covers
	// [Start()+i, Start()+j) and requires 0 <= i < j <= Len().
	Slice(i, j int) (Slice, error)
	// Evaluate sums the stage costs over [Start(), End()). t is indexed by
	// absolute stage, so it must reach End(); a non-Markovian slice needs the
	// full length of its root.
	Evaluate(t trajectory.Trajectory) (float64, error)
	// EvaluateWindow sums the same costs over a trajectory holding exactly
	// the Len() steps of the slice, w[0] being stage Start(). Only Markovian
	// slices can be evaluated this way; a non-Markovian slice whose window is
	// shorter than its root reports missing history.
	EvaluateWindow(w trajectory.Trajectory) (float64, error)
	// Node returns the value function at an absolute stage of the slice.
	Node(stage int) (*Node, error)
	Nodes() []*Node

	// history returns the steps the cost at stage may see, t[0] holding
	// stage offset.
	history(t trajectory.Trajectory, offset, stage int) (trajectory.Trajectory, error)
}

// Root returns the CostToGo a non-Markovian slice resolves history against.
// Markovian slices have no root.
func Root(s Slice) (*CostToGo, bool) {
	if h, ok := s.(*historySlice); ok {
		return h.root, true
	}
	return nil, false
}

// SameRoot reports whether a and b resolve history against the same root.
func SameRoot(a, b Slice) bool {
	ra, okA := Root(a)
	rb, okB := Root(b)
	return okA && okB && ra == rb
}

type markovianSlice struct {
	problem    problem.Problem
	start, end int
}

func (s *markovianSlice) Start() int               { return s.start }
func (s *markovianSlice) End() int                 { return s.end }
func (s *markovianSlice) Len() int                 { return s.end - s.start }
func (s *markovianSlice) Markovian() bool          { return true }
func (s *markovianSlice) Problem() problem.Problem { return s.problem }

func (s *markovianSlice) Slice(i, j int) (Slice, error) {
	if err := checkRange(i, j, s.Len()); err != nil {
		return nil, err
	}
	return &markovianSlice{problem: s.problem, start: s.start + i, end: s.start + j}, nil
}

func (s *markovianSlice) history(t trajectory.Trajectory, offset, stage int) (trajectory.Trajectory, error) {
	k := stage - offset
	if k < 0 || k >= len(t) {
		return nil, fmt.Errorf("%w: stage %d of [%d, %d) given %d steps from stage %d",
			ErrShortTrajectory, stage, s.start, s.end, len(t), offset)
	}
	return t[k : k+1], nil
}

func (s *markovianSlice) Evaluate(t trajectory.Trajectory) (float64, error) {
	if len(t) < s.end {
		return 0, fmt.Errorf("%w: [%d, %d) given %d steps", ErrShortTrajectory, s.start, s.end, len(t))
	}
	return evaluate(s, s.start, 0, t)
}

func (s *markovianSlice) EvaluateWindow(w trajectory.Trajectory) (float64, error) {
	if len(w) != s.Len() {
		return 0, fmt.Errorf("%w: window of [%d, %d) given %d steps", ErrShortTrajectory, s.start, s.end, len(w))
	}
	return evaluate(s, s.start, s.start, w)
}

func (s *markovianSlice) Node(stage int) (*Node, error) {
	return newNode(s, stage)
}

func (s *markovianSlice) Nodes() []*Node {
	return nodes(s)
}

type historySlice struct {
	// root is never another slice, so resolving history is one hop.
	root       *CostToGo
	start, end int
}

func (s *historySlice) Start() int               { return s.start }
func (s *historySlice) End() int                 { return s.end }
func (s *historySlice) Len() int                 { return s.end - s.start }
func (s *historySlice) Markovian() bool          { return false }
func (s *historySlice) Problem() problem.Problem { return s.root.problem }

func (s *historySlice) Slice(i, j int) (Slice, error) {
	if err := checkRange(i, j, s.Len()); err != nil {
		return nil, err
	}
	return &historySlice{root: s.root, start: s.start + i, end: s.start + j}, nil
}

// history needs t to start at stage zero: a window of a shorter slice never
// carries the prefix.
func (s *historySlice) history(t trajectory.Trajectory, offset, stage int) (trajectory.Trajectory, error) {
	if offset != 0 || len(t) < s.root.length {
		return nil, &MissingHistoryError{Required: s.root.length, Got: len(t)}
	}
	return t[:stage+1], nil
}

func (s *historySlice) Evaluate(t trajectory.Trajectory) (float64, error) {
	return evaluate(s, s.start, 0, t)
}

func (s *historySlice) EvaluateWindow(w trajectory.Trajectory) (float64, error) {
	if len(w) != s.Len() {
		return 0, fmt.Errorf("%w: window of [%d, %d) given %d steps", ErrShortTrajectory, s.start, s.end, len(w))
	}
	return evaluate(s, s.start, s.start, w)
}

func (s *historySlice) Node(stage int) (*Node, error) {
	return newNode(s, stage)
}

func (s *historySlice) Nodes() []*Node {
	return nodes(s)
}

// evaluate sums the stage costs of s from stage from to s.End(), t[0] holding
// stage offset.
func evaluate(s Slice, from, offset int, t trajectory.Trajectory) (float64, error) {
	p := s.Problem()
	var total float64
	for stage := from; stage < s.End(); stage++ {
		h, err := s.history(t, offset, stage)
		if err != nil {
			return 0, err
		}
		cost := p.StageCost(stage, h)
		if !gonumExtensions.Finite(cost) {
			return 0, fmt.Errorf("%w: stage %d evaluated to %v", ErrNonFiniteCost, stage, cost)
		}
		total += cost
	}
	return total, nil
}
