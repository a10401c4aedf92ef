package costtogo

import (
	"fmt"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/trajectory"
)

// Node is the value function at a single stage of a slice. It reconstructs
// the history its stage cost needs through the owning slice, so a node of a
// non-Markovian slice reaches back to the root.
type Node struct {
	slice Slice
	stage int
}

func newNode(s Slice, stage int) (*Node, error) {
	if stage < s.Start() || stage >= s.End() {
		return nil, &RangeError{Start: stage, End: stage + 1, Len: s.End()}
	}
	return &Node{slice: s, stage: stage}, nil
}

func nodes(s Slice) []*Node {
	res := make([]*Node, 0, s.Len())
	for stage := s.Start(); stage < s.End(); stage++ {
		res = append(res, &Node{slice: s, stage: stage})
	}
	return res
}

// Stage returns the absolute stage index.
func (n *Node) Stage() int {
	return n.stage
}

// Slice returns the owning slice.
func (n *Node) Slice() Slice {
	return n.slice
}

// History returns the steps visible to the stage cost: the single step at the
// stage for Markovian nodes, the prefix t[:stage+1] otherwise. t is indexed by
// absolute stage.
func (n *Node) History(t trajectory.Trajectory) (trajectory.Trajectory, error) {
	return n.slice.history(t, 0, n.stage)
}

// Cost evaluates the stage cost.
func (n *Node) Cost(t trajectory.Trajectory) (float64, error) {
	h, err := n.History(t)
	if err != nil {
		return 0, err
	}
	cost := n.slice.Problem().StageCost(n.stage, h)
	if !gonumExtensions.Finite(cost) {
		return 0, fmt.Errorf("%w: stage %d evaluated to %v", ErrNonFiniteCost, n.stage, cost)
	}
	return cost, nil
}

// CostToGo sums the stage costs from the node to the end of its slice.
func (n *Node) CostToGo(t trajectory.Trajectory) (float64, error) {
	return evaluate(n.slice, n.stage, 0, t)
}
