package partial

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rwlmu/ml-adp/costtogo"
	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/problem"
	"github.com/rwlmu/ml-adp/ssm"
	"github.com/rwlmu/ml-adp/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var quiet = WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func flatten(t trajectory.Trajectory) [][]float64 {
	res := make([][]float64, 0, 2*len(t))
	for _, step := range t {
		res = append(res, gonumExtensions.VecData(step.State), gonumExtensions.VecData(step.Control))
	}
	return res
}

func energySlice(t *testing.T, markovian bool, start, end int) costtogo.Slice {
	t.Helper()
	var p problem.Problem = problem.ControlEnergy(5)
	if !markovian {
		p = problem.WithHistoryPenalty(p, 1)
	}
	c, err := costtogo.New(p, 5, markovian)
	require.NoError(t, err)
	s, err := c.Slice(start, end)
	require.NoError(t, err)
	return s
}

// integratorLQ is x(k+1) = x(k) + u(k) with unit weights over three stages.
func integratorLQ(t *testing.T) *problem.LinearQuadratic {
	t.Helper()
	model, err := ssm.NewDiscreteModel(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
	)
	require.NoError(t, err)
	lq, err := problem.NewLinearQuadratic(model, gonumExtensions.Eye(1, 1), gonumExtensions.Eye(1, 1), nil, 3)
	require.NoError(t, err)
	return lq
}

func TestOptimizeMarkovian(t *testing.T) {
	s := energySlice(t, true, 1, 3)
	traj := trajectory.Scalars(1, 2, 3, 4, 5)
	before := flatten(traj)

	res, err := New(quiet).Optimize(s, traj)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stage)
	assert.InDelta(t, 0., res.Control.AtVec(0), 1e-3)
	assert.InDelta(t, 9., res.Cost, 1e-5)
	assert.Equal(t, 13., res.WarmCost)
	assert.Greater(t, res.Improvement(), 3.9)
	assert.Positive(t, res.Evaluations)

	require.Len(t, res.Fixed, 1)
	assert.Same(t, traj[2].Control, res.Fixed[0])
	if diff := cmp.Diff(before, flatten(traj)); diff != "" {
		t.Errorf("warm start modified (-want +got):\n%s", diff)
	}
}

func TestOptimizeNonMarkovian(t *testing.T) {
	s := energySlice(t, false, 1, 3)
	traj := trajectory.Scalars(1, 2, 3, 4, 5)
	before := flatten(traj)

	res, err := New(quiet).Optimize(s, traj)
	require.NoError(t, err)
	// u^2 + 1 + 9 + (1 + u) is minimal at u = -1/2
	assert.InDelta(t, -0.5, res.Control.AtVec(0), 1e-3)
	assert.InDelta(t, 10.75, res.Cost, 1e-5)
	assert.Equal(t, 17., res.WarmCost)
	if diff := cmp.Diff(before, flatten(traj)); diff != "" {
		t.Errorf("warm start modified (-want +got):\n%s", diff)
	}
}

func TestOptimizeMissingHistoryBeforeMinimizer(t *testing.T) {
	s := energySlice(t, false, 1, 3)
	called := false
	o := New(quiet, WithMinimizer(MinimizerFunc(func(f func([]float64) float64, x0 []float64) (Solution, error) {
		called = true
		return Solution{X: x0}, nil
	})))
	_, err := o.Optimize(s, trajectory.Scalars(2, 3))
	assert.ErrorIs(t, err, costtogo.ErrMissingHistory)
	assert.False(t, called)
}

func TestOptimizeInvalidTrajectory(t *testing.T) {
	traj := trajectory.Scalars(1, 2, 3, 4, 5)
	traj[4].Control = nil
	_, err := New(quiet).Optimize(energySlice(t, true, 0, 2), traj)
	assert.ErrorIs(t, err, trajectory.ErrInvalidStep)
}

func TestOptimizePropagatesConvergenceError(t *testing.T) {
	want := &ConvergenceError{Status: optimize.IterationLimit}
	o := New(quiet, WithMinimizer(MinimizerFunc(func(func([]float64) float64, []float64) (Solution, error) {
		return Solution{}, want
	})))
	failures := testutil.ToFloat64(optimizationsTotal.WithLabelValues(outcomeConvergence))

	_, err := o.Optimize(energySlice(t, true, 0, 3), trajectory.Scalars(1, 2, 3, 4, 5))
	require.Error(t, err)
	assert.Same(t, want, err, "convergence errors are returned unchanged")
	assert.Equal(t, failures+1, testutil.ToFloat64(optimizationsTotal.WithLabelValues(outcomeConvergence)))
}

func TestGonumMinimizerIterationLimit(t *testing.T) {
	m := &GonumMinimizer{Method: MethodNelderMead, MaxIterations: 1}
	_, err := New(quiet, WithMinimizer(m)).Optimize(energySlice(t, true, 0, 3), trajectory.Scalars(1, 2, 3, 4, 5))
	var convErr *ConvergenceError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, optimize.IterationLimit, convErr.Status)
	assert.Contains(t, convErr.Error(), "did not converge")
}

func TestOptimizeMethods(t *testing.T) {
	lq := integratorLQ(t)
	c, err := costtogo.New(lq, 3, true)
	require.NoError(t, err)
	s, err := c.Slice(0, 3)
	require.NoError(t, err)

	for _, method := range []string{MethodNelderMead, MethodBFGS, MethodLBFGS, MethodGradientDescent} {
		t.Run(method, func(t *testing.T) {
			traj := trajectory.FromControls(mat.NewVecDense(1, []float64{1}), trajectory.Scalars(0, 0, 0).Controls(), lq)
			m, err := NewGonumMinimizer(method)
			require.NoError(t, err)
			res, err := New(quiet, WithMinimizer(m)).Optimize(s, traj)
			require.NoError(t, err)
			// 1 + u^2 + 2 (1 + u)^2 is minimal at u = -2/3
			assert.InDelta(t, -2./3., res.Control.AtVec(0), 1e-3)
			assert.InDelta(t, 1+4./9.+2./9., res.Cost, 1e-5)
		})
	}
}

func TestOptimizeWithoutPropagation(t *testing.T) {
	lq := integratorLQ(t)
	c, err := costtogo.New(lq, 3, true)
	require.NoError(t, err)
	s, err := c.Slice(0, 3)
	require.NoError(t, err)
	traj := trajectory.FromControls(mat.NewVecDense(1, []float64{1}), trajectory.Scalars(0, 0, 0).Controls(), lq)

	res, err := New(quiet, WithPropagateStates(false)).Optimize(s, traj)
	require.NoError(t, err)
	// States are held, so only u^2 depends on the free control.
	assert.InDelta(t, 0., res.Control.AtVec(0), 1e-3)
}

func TestOptimizeWindow(t *testing.T) {
	s := energySlice(t, true, 1, 3)
	window := trajectory.Scalars(2, 3)
	_, err := New(quiet).Optimize(s, window)
	assert.ErrorIs(t, err, costtogo.ErrShortTrajectory, "a window is not indexed by absolute stage")

	res, err := New(quiet).OptimizeWindow(s, window)
	require.NoError(t, err)
	assert.InDelta(t, 0., res.Control.AtVec(0), 1e-3)
	require.Len(t, res.Fixed, 1)
	assert.Same(t, window[1].Control, res.Fixed[0])

	res.Apply(window, nil)
	assert.InDelta(t, 0., window[0].Control.AtVec(0), 1e-3)
	assert.Equal(t, 3., window[1].Control.AtVec(0))
}

func TestOptimizeWindowNonMarkovian(t *testing.T) {
	_, err := New(quiet).OptimizeWindow(energySlice(t, false, 1, 3), trajectory.Scalars(2, 3))
	assert.ErrorIs(t, err, costtogo.ErrMissingHistory)
}

func TestZeroResultApplyIsNoop(t *testing.T) {
	traj := trajectory.Scalars(1, 2, 3)
	res, err := New(quiet).Optimize(energySlice(t, false, 1, 3), trajectory.Scalars(2, 3))
	require.Error(t, err)
	assert.NotPanics(t, func() { res.Apply(traj, problem.ControlEnergy(3)) })
	assert.Equal(t, 1., traj[0].Control.AtVec(0))
}

func TestResultApply(t *testing.T) {
	lq := integratorLQ(t)
	c, err := costtogo.New(lq, 3, false)
	require.NoError(t, err)
	s, err := c.Slice(0, 2)
	require.NoError(t, err)
	traj := trajectory.FromControls(mat.NewVecDense(1, []float64{1}), trajectory.Scalars(0, 0, 0).Controls(), lq)

	res, err := New(quiet).Optimize(s, traj)
	require.NoError(t, err)
	assert.Equal(t, 1., traj[1].State.AtVec(0), "not applied yet")

	res.Apply(traj, lq)
	u := res.Control.AtVec(0)
	assert.Equal(t, u, traj[0].Control.AtVec(0))
	assert.InDelta(t, 1+u, traj[1].State.AtVec(0), 1e-12)
	assert.InDelta(t, 1+u, traj[2].State.AtVec(0), 1e-12)

	cost, err := s.Evaluate(traj)
	require.NoError(t, err)
	assert.InDelta(t, res.Cost, cost, 1e-12)
}

func TestOptimizeKeepsBetterWarmStart(t *testing.T) {
	o := New(quiet, WithMinimizer(MinimizerFunc(func(f func([]float64) float64, x0 []float64) (Solution, error) {
		x := []float64{100}
		return Solution{X: x, F: f(x), Evaluations: 1}, nil
	})))
	res, err := o.Optimize(energySlice(t, true, 0, 2), trajectory.Scalars(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, 1., res.Control.AtVec(0))
	assert.Equal(t, res.WarmCost, res.Cost)
	assert.Zero(t, res.Improvement())
}

func TestOptimizeRejectsWrongDimension(t *testing.T) {
	o := New(quiet, WithMinimizer(MinimizerFunc(func(f func([]float64) float64, x0 []float64) (Solution, error) {
		return Solution{X: []float64{1, 2}}, nil
	})))
	_, err := o.Optimize(energySlice(t, true, 0, 2), trajectory.Scalars(1, 2, 3, 4, 5))
	assert.Error(t, err)
}

func TestOptimizeOtherMinimizerErrors(t *testing.T) {
	boom := errors.New("boom")
	o := New(quiet, WithMinimizer(MinimizerFunc(func(func([]float64) float64, []float64) (Solution, error) {
		return Solution{}, boom
	})))
	_, err := o.Optimize(energySlice(t, true, 0, 2), trajectory.Scalars(1, 2, 3, 4, 5))
	assert.Same(t, boom, err)
}

func TestNewGonumMinimizer(t *testing.T) {
	_, err := NewGonumMinimizer("simplex")
	assert.Error(t, err)
	m, err := NewGonumMinimizer(MethodBFGS)
	require.NoError(t, err)
	assert.Equal(t, MethodBFGS, m.Method)
}

func TestProjectionSharesFixedSteps(t *testing.T) {
	traj := trajectory.Scalars(1, 2, 3)
	p := projection{base: traj, index: 1, end: 3}
	cand := p.candidate([]float64{7})
	assert.Same(t, traj[0].Control, cand[0].Control)
	assert.Same(t, traj[2].Control, cand[2].Control)
	assert.NotSame(t, traj[1].Control, cand[1].Control)
	assert.Equal(t, 7., cand[1].Control.AtVec(0))
	assert.Equal(t, 2., traj[1].Control.AtVec(0))
	if diff := cmp.Diff([]float64{1, 7, 3}, []float64{
		cand[0].Control.AtVec(0), cand[1].Control.AtVec(0), cand[2].Control.AtVec(0),
	}, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Error(diff)
	}
}

func TestGonumMinimizerFiniteDifferenceThreshold(t *testing.T) {
	g := &GonumMinimizer{Method: MethodBFGS}
	assert.Equal(t, finiteDifferenceThreshold, g.settings(true).GradientThreshold)
	assert.Zero(t, g.settings(false).GradientThreshold)

	g.GradientThreshold = 1e-9
	assert.Equal(t, 1e-9, g.settings(true).GradientThreshold)
}

func TestGradientMethodsConvergeOnQuadratic(t *testing.T) {
	// (x - 1)^2 + 3 (y + 2)^2 with finite difference gradients
	f := func(x []float64) float64 {
		return (x[0]-1)*(x[0]-1) + 3*(x[1]+2)*(x[1]+2)
	}
	for _, method := range []string{MethodBFGS, MethodLBFGS} {
		t.Run(method, func(t *testing.T) {
			m, err := NewGonumMinimizer(method)
			require.NoError(t, err)
			sol, err := m.Minimize(f, []float64{5, 5})
			require.NoError(t, err)
			if diff := cmp.Diff([]float64{1, -2}, sol.X, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
				t.Errorf("minimum (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptimizeConcurrentSlicesOfOneRoot(t *testing.T) {
	p := problem.WithHistoryPenalty(problem.ControlEnergy(5), 1)
	c, err := costtogo.New(p, 5, false)
	require.NoError(t, err)
	o := New(quiet)

	const workers = 5
	trajs := make([]trajectory.Trajectory, workers)
	before := make([][][]float64, workers)
	results := make([]Result, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		trajs[w] = trajectory.Scalars(1, 2, 3, 4, 5)
		before[w] = flatten(trajs[w])
		go func(w int) {
			defer wg.Done()
			s, err := c.Slice(w, 5)
			if err != nil {
				errs[w] = err
				return
			}
			results[w], errs[w] = o.Optimize(s, trajs[w])
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		// u^2 + (5 - 1 - w) u is minimal at u = -(4 - w)/2
		assert.InDelta(t, -float64(4-w)/2, results[w].Control.AtVec(0), 1e-3, "stage %d", w)
		if diff := cmp.Diff(before[w], flatten(trajs[w])); diff != "" {
			t.Errorf("warm start %d modified (-want +got):\n%s", w, diff)
		}
	}
}
