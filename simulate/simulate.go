// Package simulate runs closed loop rollouts of a problem and evaluates batches
// of trajectories against a cost-to-go in parallel.
package simulate

import (
	"context"
	"runtime"

	"github.com/rwlmu/ml-adp/costtogo"
	"github.com/rwlmu/ml-adp/problem"
	"github.com/rwlmu/ml-adp/trajectory"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Policy maps a stage and the state reached there to a control.
type Policy interface {
	Control(stage int, state mat.Vector) *mat.VecDense
}

// PolicyFunc adapts a function to a Policy.
type PolicyFunc func(stage int, state mat.Vector) *mat.VecDense

func (f PolicyFunc) Control(stage int, state mat.Vector) *mat.VecDense {
	return f(stage, state)
}

// OpenLoop replays a fixed control sequence.
func OpenLoop(controls []*mat.VecDense) Policy {
	return PolicyFunc(func(stage int, _ mat.Vector) *mat.VecDense {
		return mat.VecDenseCopyOf(controls[stage])
	})
}

// Rollout applies policy from x0 over length stages of p.
func Rollout(p problem.Problem, x0 mat.Vector, policy Policy, length int) trajectory.Trajectory {
	t := make(trajectory.Trajectory, length)
	state := mat.VecDenseCopyOf(x0)
	for k := range t {
		u := policy.Control(k, state)
		t[k] = trajectory.Step{State: state, Control: u}
		if k+1 < length {
			state = mat.VecDenseCopyOf(p.Dynamics(state, u))
		}
	}
	return t
}

// Outcome of evaluating one trajectory of a batch.
type Outcome struct {
	Cost float64
	Err  error
}

// Evaluate computes s.Evaluate for every trajectory using at most workers
// goroutines, zero meaning GOMAXPROCS. Outcomes are returned in the order of
// ts. A failing trajectory does not stop the others; a cancelled ctx does, and
// the trajectories not yet started report ctx.Err().
func Evaluate(ctx context.Context, s costtogo.Slice, ts []trajectory.Trajectory, workers int) []Outcome {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]Outcome, len(ts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range ts {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Cost, outcomes[i].Err = s.Evaluate(t)
			return nil
		})
	}
	// The closures never fail; errors are per trajectory, in outcomes.
	_ = g.Wait()
	return outcomes
}

// Compare rolls every policy out from stage zero at x0 and evaluates the
// results on s in parallel. Rollouts reach the end of s, or the end of its root
// when s depends on history.
func Compare(ctx context.Context, s costtogo.Slice, x0 mat.Vector, policies []Policy, workers int) ([]trajectory.Trajectory, []Outcome) {
	length := s.End()
	if root, ok := costtogo.Root(s); ok {
		length = max(length, root.Len())
	}
	ts := make([]trajectory.Trajectory, len(policies))
	for i, policy := range policies {
		ts[i] = Rollout(s.Problem(), x0, policy, length)
	}
	return ts, Evaluate(ctx, s, ts, workers)
}
