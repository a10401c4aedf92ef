package convex

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Sample is a target value of the mapping at control X and state Y.
type Sample struct {
	X, Y   mat.Vector
	Target float64
}

// Loss returns the mean squared error of n over samples.
func (n *PICNN) Loss(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: no samples", ErrShape)
	}
	var sum float64
	for _, s := range samples {
		z, err := n.Apply(s.X, s.Y)
		if err != nil {
			return 0, err
		}
		d := z.AtVec(0) - s.Target
		sum += d * d
	}
	return sum / float64(len(samples)), nil
}

// Fit minimizes the loss over the parameters of n with method, L-BFGS when
// nil, using central difference gradients. The parameters are only replaced
// when the loss improves, so n is left usable when the method fails. It
// returns the final loss.
func (n *PICNN) Fit(samples []Sample, method optimize.Method, settings *optimize.Settings) (float64, error) {
	initial, err := n.Loss(samples)
	if err != nil {
		return 0, err
	}
	theta := n.Parameters()
	work := *n
	work.Param, work.U, work.V, work.W = cloneLayers(n.Param), cloneLayers(n.U), cloneLayers(n.V), cloneLayers(n.W)
	work.RawA, work.B = cloneDense(n.RawA), cloneDense(n.B)

	f := func(x []float64) float64 {
		if err := work.SetParameters(x); err != nil {
			panic(err)
		}
		loss, err := work.Loss(samples)
		if err != nil {
			panic(err)
		}
		return loss
	}
	p := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		},
	}
	if method == nil {
		method = &optimize.LBFGS{}
	}
	if settings == nil {
		settings = &optimize.Settings{GradientThreshold: 1e-6}
	}
	res, err := optimize.Minimize(p, theta, settings, method)
	if res == nil {
		return initial, err
	}
	if res.F >= initial {
		if err != nil {
			return initial, fmt.Errorf("convex: fit made no progress: %w", err)
		}
		return initial, nil
	}
	if serr := n.SetParameters(res.X); serr != nil {
		return initial, serr
	}
	return res.F, nil
}

func cloneLayers(ls []Layer) []Layer {
	res := make([]Layer, len(ls))
	for i, l := range ls {
		res[i] = Layer{Weights: mat.DenseCopyOf(l.Weights), Activation: l.Activation}
		if l.Bias != nil {
			res[i].Bias = mat.VecDenseCopyOf(l.Bias)
		}
	}
	return res
}

func cloneDense(ms []*mat.Dense) []*mat.Dense {
	res := make([]*mat.Dense, len(ms))
	for i, m := range ms {
		res[i] = mat.DenseCopyOf(m)
	}
	return res
}
