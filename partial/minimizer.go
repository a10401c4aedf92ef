package partial

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Minimizer is the black box that minimizes a scalar function of the free
// control, starting from x0.
//
// Implementations report failure to converge with an error; Optimize hands
// that error back to its caller unchanged.
type Minimizer interface {
	Minimize(f func(x []float64) float64, x0 []float64) (Solution, error)
}

// MinimizerFunc adapts a function to a Minimizer.
type MinimizerFunc func(f func(x []float64) float64, x0 []float64) (Solution, error)

func (m MinimizerFunc) Minimize(f func(x []float64) float64, x0 []float64) (Solution, error) {
	return m(f, x0)
}

// Solution is the point a Minimizer settled on.
type Solution struct {
	X           []float64
	F           float64
	Evaluations int
}

// ConvergenceError is returned when the minimizer stops without meeting its
// convergence criteria.
type ConvergenceError struct {
	Status optimize.Status
	Err    error
}

func (e *ConvergenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partial: minimizer did not converge (%v): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("partial: minimizer did not converge (%v)", e.Status)
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// Methods understood by GonumMinimizer.
const (
	MethodNelderMead      = "nelder-mead"
	MethodBFGS            = "bfgs"
	MethodLBFGS           = "lbfgs"
	MethodGradientDescent = "gradient-descent"
)

// GonumMinimizer minimizes with gonum/optimize. The gradient based methods
// use central finite differences.
type GonumMinimizer struct {
	Method string
	// Zero values fall back to the gonum defaults.
	MaxIterations      int
	MaxEvaluations     int
	GradientThreshold  float64
	ConvergeAbsolute   float64
	ConvergeIterations int
}

// NewGonumMinimizer returns a minimizer using method with gonum's default
// stopping rules.
func NewGonumMinimizer(method string) (*GonumMinimizer, error) {
	if _, err := gonumMethod(method); err != nil {
		return nil, err
	}
	return &GonumMinimizer{Method: method}, nil
}

func gonumMethod(method string) (optimize.Method, error) {
	switch method {
	case MethodNelderMead, "":
		return &optimize.NelderMead{}, nil
	case MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	case MethodGradientDescent:
		return &optimize.GradientDescent{}, nil
	}
	return nil, fmt.Errorf("partial: unknown minimization method %q", method)
}

// finiteDifferenceThreshold is the default gradient norm threshold for the
// gradient based methods. Central differences carry noise far above gonum's
// own default of 1e-12, so line searches near the optimum would fail first.
const finiteDifferenceThreshold = 1e-6

func (g *GonumMinimizer) settings(finiteDifferences bool) *optimize.Settings {
	s := &optimize.Settings{
		MajorIterations:   g.MaxIterations,
		FuncEvaluations:   g.MaxEvaluations,
		GradientThreshold: g.GradientThreshold,
	}
	if finiteDifferences && s.GradientThreshold == 0 {
		s.GradientThreshold = finiteDifferenceThreshold
	}
	if g.ConvergeAbsolute > 0 || g.ConvergeIterations > 0 {
		s.Converger = &optimize.FunctionConverge{
			Absolute:   g.ConvergeAbsolute,
			Iterations: g.ConvergeIterations,
		}
	}
	return s
}

// Minimize runs the configured gonum method from x0.
func (g *GonumMinimizer) Minimize(f func(x []float64) float64, x0 []float64) (Solution, error) {
	method, err := gonumMethod(g.Method)
	if err != nil {
		return Solution{}, err
	}
	p := optimize.Problem{Func: f}
	_, gradientFree := method.(*optimize.NelderMead)
	if !gradientFree {
		p.Grad = func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		}
	}

	res, err := optimize.Minimize(p, x0, g.settings(!gradientFree), method)
	if err != nil {
		status := optimize.Failure
		if res != nil {
			status = res.Status
		}
		return Solution{}, &ConvergenceError{Status: status, Err: err}
	}
	if !converged(res.Status) {
		return Solution{}, &ConvergenceError{Status: res.Status}
	}
	return Solution{X: res.X, F: res.F, Evaluations: res.FuncEvaluations}, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}
