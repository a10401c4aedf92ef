// Package costtogo implements a finite horizon cost-to-go over the stages
// [0, K) of a problem, and the slices that restrict it to a contiguous stage
// range.
//
// In Markovian mode a slice is self-contained: the cost at stage s only sees
// step s of the trajectory. In non-Markovian mode the cost at stage s sees the
// whole prefix t[:s+1], so every slice keeps a reference to the root CostToGo
// it was cut from, and evaluation requires a trajectory spanning the root.
//
// CostToGo values and slices are immutable and safe for concurrent reads.
// Trajectories are not: callers synchronise access to them.
package costtogo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rwlmu/ml-adp/problem"
	"github.com/rwlmu/ml-adp/trajectory"
)

// CostToGo is the value function container over stages [0, Len()).
type CostToGo struct {
	id        uuid.UUID
	problem   problem.Problem
	length    int
	markovian bool
}

// New returns the cost-to-go over the first length stages of p.
//
// markovian selects whether stage costs depend on the current step only
// (true) or on the full history since stage 0 (false).
func New(p problem.Problem, length int, markovian bool) (*CostToGo, error) {
	if p == nil {
		return nil, errors.New("costtogo: nil problem")
	}
	if err := checkRange(0, length, p.HorizonLength()); err != nil {
		return nil, fmt.Errorf("costtogo: length %d outside horizon %d: %w", length, p.HorizonLength(), err)
	}
	c := &CostToGo{
		id:        uuid.New(),
		problem:   p,
		length:    length,
		markovian: markovian,
	}
	slog.Debug("cost-to-go created",
		slog.String("id", c.id.String()),
		slog.Int("length", length),
		slog.Bool("markovian", markovian))
	return c, nil
}

// ID identifies the root in logs.
func (c *CostToGo) ID() uuid.UUID {
	return c.id
}

func (c *CostToGo) Problem() problem.Problem {
	return c.problem
}

// Len returns K.
func (c *CostToGo) Len() int {
	return c.length
}

func (c *CostToGo) Markovian() bool {
	return c.markovian
}

// StageRange returns [0, K).
func (c *CostToGo) StageRange() (start, end int) {
	return 0, c.length
}

// Slice returns the view over stages [start, end). It fails with a
// RangeError unless 0 <= start < end <= K.
func (c *CostToGo) Slice(start, end int) (Slice, error) {
	if err := checkRange(start, end, c.length); err != nil {
		return nil, err
	}
	if c.markovian {
		return &markovianSlice{problem: c.problem, start: start, end: end}, nil
	}
	return &historySlice{root: c, start: start, end: end}, nil
}

// Evaluate returns the cost-to-go over the full horizon.
func (c *CostToGo) Evaluate(t trajectory.Trajectory) (float64, error) {
	s, err := c.Slice(0, c.length)
	if err != nil {
		return 0, err
	}
	return s.Evaluate(t)
}

// Node returns the value function at stage.
func (c *CostToGo) Node(stage int) (*Node, error) {
	s, err := c.Slice(0, c.length)
	if err != nil {
		return nil, err
	}
	return s.Node(stage)
}

func (c *CostToGo) String() string {
	mode := "markovian"
	if !c.markovian {
		mode = "non-markovian"
	}
	return fmt.Sprintf("CostToGo(%s, [0, %d), %s)", c.id, c.length, mode)
}
