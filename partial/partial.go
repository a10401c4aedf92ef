// Package partial re-optimizes the first control of a cost-to-go slice while
// the remaining controls of the slice stay at their warm start values.
//
// Repeating slice, optimize first control, advance gives the receding horizon
// loop of package horizon.
package partial

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rwlmu/ml-adp/costtogo"
	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Optimizer performs partial re-optimization. It holds no per-run state and
// may be shared between goroutines working on distinct trajectories.
type Optimizer struct {
	minimizer Minimizer
	propagate bool
	logger    *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMinimizer replaces the default Nelder-Mead minimizer.
func WithMinimizer(m Minimizer) Option {
	return func(o *Optimizer) {
		o.minimizer = m
	}
}

// WithPropagateStates selects whether candidate controls are rolled through
// the problem dynamics to the states later in the slice. It is on by default.
func WithPropagateStates(propagate bool) Option {
	return func(o *Optimizer) {
		o.propagate = propagate
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) {
		o.logger = l
	}
}

// New returns an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		minimizer: &GonumMinimizer{Method: MethodNelderMead},
		propagate: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result of a partial re-optimization.
type Result struct {
	// Stage is the slice start, the stage of the free control.
	Stage int
	// Control is the minimizing first control.
	Control *mat.VecDense
	// Cost is the slice cost with Control substituted.
	Cost float64
	// WarmCost is the slice cost at the warm start.
	WarmCost float64
	// Fixed are the controls of stages (Stage, End), shared with the warm
	// start trajectory and left untouched.
	Fixed       []*mat.VecDense
	Evaluations int

	index int
}

// Improvement returns WarmCost - Cost.
func (r Result) Improvement() float64 {
	return r.WarmCost - r.Cost
}

// Apply writes Control into t at the free stage. If dyn is non-nil the states
// after that stage are rolled forward.
// A zero Result, as returned with an error, applies nothing.
func (r Result) Apply(t trajectory.Trajectory, dyn trajectory.Dynamics) {
	if r.Control == nil {
		return
	}
	t[r.index].Control.CopyVec(r.Control)
	if dyn != nil {
		t.Rollout(dyn, r.index)
	}
}

// Optimize minimizes s.Evaluate over the control at s.Start(), holding every
// other control of t fixed. t is indexed by absolute stage; it is the warm
// start and is never modified.
//
// Errors from evaluating the warm start (ErrMissingHistory, ErrRange, ...) are
// returned before the minimizer runs; minimizer errors, *ConvergenceError
// among them, are returned unchanged.
func (o *Optimizer) Optimize(s costtogo.Slice, t trajectory.Trajectory) (Result, error) {
	return o.optimize(s, t, s.Start(), s.Evaluate)
}

// OptimizeWindow is Optimize for a warm start holding exactly the window of
// s, w[0] being stage s.Start(). It evaluates with s.EvaluateWindow.
func (o *Optimizer) OptimizeWindow(s costtogo.Slice, w trajectory.Trajectory) (Result, error) {
	return o.optimize(s, w, 0, s.EvaluateWindow)
}

func (o *Optimizer) optimize(s costtogo.Slice, t trajectory.Trajectory, index int, evaluate func(trajectory.Trajectory) (float64, error)) (Result, error) {
	if err := t.Validate(); err != nil {
		optimizationsTotal.WithLabelValues(outcomeError).Inc()
		return Result{}, err
	}
	warmCost, err := evaluate(t)
	if err != nil {
		optimizationsTotal.WithLabelValues(outcomeError).Inc()
		return Result{}, err
	}

	proj := o.project(s, t, index)
	var (
		evaluations int
		evalErr     error
	)
	objective := func(x []float64) float64 {
		evaluations++
		cost, err := evaluate(proj.candidate(x))
		if err != nil {
			if !errors.Is(err, costtogo.ErrNonFiniteCost) && evalErr == nil {
				evalErr = err
			}
			return math.Inf(1)
		}
		return cost
	}

	x0 := gonumExtensions.VecData(t[proj.index].Control)
	sol, err := o.minimizer.Minimize(objective, x0)
	objectiveEvaluations.Observe(float64(evaluations))
	if err != nil {
		var convErr *ConvergenceError
		if errors.As(err, &convErr) {
			optimizationsTotal.WithLabelValues(outcomeConvergence).Inc()
		} else {
			optimizationsTotal.WithLabelValues(outcomeError).Inc()
		}
		o.logger.Warn("partial re-optimization failed",
			slog.Int("stage", s.Start()),
			slog.Int("end", s.End()),
			slog.Int("evaluations", evaluations),
			slog.Any("error", err))
		return Result{}, err
	}
	if evalErr != nil {
		optimizationsTotal.WithLabelValues(outcomeError).Inc()
		return Result{}, fmt.Errorf("partial: evaluating candidate control: %w", evalErr)
	}
	if len(sol.X) != len(x0) {
		optimizationsTotal.WithLabelValues(outcomeError).Inc()
		return Result{}, fmt.Errorf("partial: minimizer returned %d coordinates for a %d dimensional control", len(sol.X), len(x0))
	}

	res := Result{
		Stage:       s.Start(),
		Control:     mat.NewVecDense(len(x0), append([]float64(nil), sol.X...)),
		WarmCost:    warmCost,
		Fixed:       t[proj.index+1 : proj.end].Controls(),
		Evaluations: evaluations,
		index:       proj.index,
	}
	res.Cost, err = evaluate(proj.candidate(sol.X))
	if err != nil || res.Cost > warmCost {
		// The minimizer did worse than where it started.
		res.Control = mat.NewVecDense(len(x0), x0)
		res.Cost = warmCost
	}
	optimizationsTotal.WithLabelValues(outcomeConverged).Inc()
	o.logger.Debug("partial re-optimization",
		slog.Int("stage", res.Stage),
		slog.Int("end", s.End()),
		slog.Float64("warm_cost", warmCost),
		slog.Float64("cost", res.Cost),
		slog.Int("evaluations", evaluations))
	return res, nil
}

// projection exposes the control at index as the only free coordinate of t.
// Candidates share every other step with t.
type projection struct {
	base  trajectory.Trajectory
	index int
	// end is the index one past the last stage of the slice.
	end int
	dyn trajectory.Dynamics
}

func (o *Optimizer) project(s costtogo.Slice, t trajectory.Trajectory, index int) projection {
	p := projection{base: t, index: index, end: index + s.Len()}
	if o.propagate {
		p.dyn = s.Problem()
	}
	return p
}

func (p projection) candidate(x []float64) trajectory.Trajectory {
	cand := make(trajectory.Trajectory, len(p.base))
	copy(cand, p.base)
	cand[p.index].Control = mat.NewVecDense(len(x), append([]float64(nil), x...))
	if p.dyn == nil {
		return cand
	}
	for k := p.index; k+1 < p.end; k++ {
		cand[k+1].State = mat.VecDenseCopyOf(p.dyn.Dynamics(cand[k].State, cand[k].Control))
	}
	return cand
}
