// Package horizon runs the receding horizon loop: slice the cost-to-go at the
// current stage, re-optimize the first control of the slice, commit it and
// advance.
package horizon

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rwlmu/ml-adp/costtogo"
	"github.com/rwlmu/ml-adp/partial"
	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidWindow is returned for a window shorter than one stage.
var ErrInvalidWindow = errors.New("horizon: window must cover at least one stage")

// Controller drives the receding horizon loop over a cost-to-go.
type Controller struct {
	CostToGo  *costtogo.CostToGo
	Optimizer *partial.Optimizer
	// Window is the number of stages each slice covers, cut short at the
	// horizon end.
	Window int
	// Passes bounds the sweeps over the horizon. Sweeping stops early once a
	// pass improves the full cost by less than Tolerance.
	Passes    int
	Tolerance float64
	Logger    *slog.Logger
}

// New returns a single pass controller.
func New(c *costtogo.CostToGo, o *partial.Optimizer, window int) (*Controller, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	return &Controller{
		CostToGo:  c,
		Optimizer: o,
		Window:    window,
		Passes:    1,
		Logger:    slog.Default(),
	}, nil
}

// StepReport records one committed control.
type StepReport struct {
	Pass     int
	Stage    int
	End      int
	Control  *mat.VecDense
	Cost     float64
	WarmCost float64
}

// Report of a run.
type Report struct {
	Steps []StepReport
	// Costs holds the full horizon cost before the first pass and after each
	// completed pass.
	Costs []float64
}

// Final returns the full horizon cost after the last completed pass.
func (r Report) Final() float64 {
	if len(r.Costs) == 0 {
		return 0
	}
	return r.Costs[len(r.Costs)-1]
}

// Improvement sums the slice cost reductions of all committed controls.
func (r Report) Improvement() float64 {
	gains := make([]float64, len(r.Steps))
	for i, step := range r.Steps {
		gains[i] = step.WarmCost - step.Cost
	}
	return floats.Sum(gains)
}

// Run sweeps the horizon, updating t in place: after each stage the new
// control is written into t and the states that follow are rolled forward
// with the problem dynamics. t is also the warm start of every slice.
//
// The first error aborts the run. It is returned wrapped with the stage, and
// the report covers the steps committed so far.
func (c *Controller) Run(t trajectory.Trajectory) (Report, error) {
	var report Report
	if c.Window < 1 {
		return report, fmt.Errorf("%w: got %d", ErrInvalidWindow, c.Window)
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	passes := c.Passes
	if passes < 1 {
		passes = 1
	}
	K := c.CostToGo.Len()
	dyn := c.CostToGo.Problem()

	prev, err := c.CostToGo.Evaluate(t)
	if err != nil {
		return report, fmt.Errorf("horizon: initial cost: %w", err)
	}
	report.Costs = append(report.Costs, prev)

	for pass := 0; pass < passes; pass++ {
		for k := 0; k < K; k++ {
			end := min(k+c.Window, K)
			s, err := c.CostToGo.Slice(k, end)
			if err != nil {
				return report, fmt.Errorf("horizon: stage %d: %w", k, err)
			}
			res, err := c.Optimizer.Optimize(s, t)
			if err != nil {
				return report, fmt.Errorf("horizon: stage %d: %w", k, err)
			}
			res.Apply(t, dyn)
			report.Steps = append(report.Steps, StepReport{
				Pass:     pass,
				Stage:    k,
				End:      end,
				Control:  res.Control,
				Cost:     res.Cost,
				WarmCost: res.WarmCost,
			})
		}

		cost, err := c.CostToGo.Evaluate(t)
		if err != nil {
			return report, fmt.Errorf("horizon: pass %d cost: %w", pass, err)
		}
		report.Costs = append(report.Costs, cost)
		logger.Info("receding horizon pass",
			slog.String("cost_to_go", c.CostToGo.ID().String()),
			slog.Int("pass", pass),
			slog.Int("window", c.Window),
			slog.Float64("cost", cost),
			slog.Float64("previous", prev))

		if prev-cost < c.Tolerance {
			break
		}
		prev = cost
	}
	return report, nil
}
