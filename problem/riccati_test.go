package problem

import (
	"testing"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/ssm"
	"github.com/rwlmu/ml-adp/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func totalCost(p Problem, t trajectory.Trajectory) float64 {
	cost := 0.
	for k := range t {
		cost += p.StageCost(k, t[:k+1])
	}
	return cost
}

func TestRiccatiScalar(t *testing.T) {
	model, err := ssm.NewDiscreteModel(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
	)
	require.NoError(t, err)
	lq, err := NewLinearQuadratic(model, gonumExtensions.Eye(1, 1), gonumExtensions.Eye(1, 1), nil, 3)
	require.NoError(t, err)

	r, err := lq.Riccati(3)
	require.NoError(t, err)
	// P = 0, 1, 3/2, 8/5 backwards
	assert.InDelta(t, 0., r.P[3].At(0, 0), 1e-12)
	assert.InDelta(t, 1., r.P[2].At(0, 0), 1e-12)
	assert.InDelta(t, 1.5, r.P[1].At(0, 0), 1e-12)
	assert.InDelta(t, 1.6, r.P[0].At(0, 0), 1e-12)
	// u(0) = -P(1)/(1+P(1)) x
	x := mat.NewVecDense(1, []float64{1})
	assert.InDelta(t, -0.6, r.Control(0, x).AtVec(0), 1e-12)
	assert.InDelta(t, 1.6, r.Cost(0, x), 1e-12)
}

func TestRiccatiDoubleIntegrator(t *testing.T) {
	model, err := ssm.NewDiscreteModel(
		mat.NewDense(2, 2, []float64{1, 0.1, 0, 1}),
		mat.NewDense(2, 1, []float64{0.005, 0.1}),
		mat.NewDense(1, 2, []float64{1, 0}),
	)
	require.NoError(t, err)
	lq, err := NewLinearQuadratic(model, gonumExtensions.Eye(2, 1), gonumExtensions.Eye(1, 0.1), gonumExtensions.Eye(2, 10), 20)
	require.NoError(t, err)

	r, err := lq.Riccati(20)
	require.NoError(t, err)
	require.Len(t, r.P, 21)
	require.Len(t, r.Gain, 20)
	assert.True(t, mat.EqualApprox(r.P[20], lq.Qf, 1e-12))

	x0 := mat.NewVecDense(2, []float64{1, -0.5})
	opt := r.Trajectory(x0, lq)
	require.NoError(t, opt.Validate())
	assert.InDelta(t, r.Cost(0, x0), totalCost(lq, opt), 1e-9)

	// Any other control sequence costs more.
	want := totalCost(lq, opt)
	controls := opt.Clone().Controls()
	controls[3].SetVec(0, controls[3].AtVec(0)+0.1)
	perturbed := trajectory.FromControls(x0, controls, lq)
	assert.Greater(t, totalCost(lq, perturbed), want)
}

func TestRiccatiLength(t *testing.T) {
	model, err := ssm.NewDiscreteModel(
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
	)
	require.NoError(t, err)
	lq, err := NewLinearQuadratic(model, gonumExtensions.Eye(1, 1), gonumExtensions.Eye(1, 1), gonumExtensions.Eye(1, 5), 3)
	require.NoError(t, err)

	_, err = lq.Riccati(0)
	assert.ErrorIs(t, err, ErrInvalidProblem)
	_, err = lq.Riccati(4)
	assert.ErrorIs(t, err, ErrInvalidProblem)

	// Shorter recursions drop the terminal weight.
	r, err := lq.Riccati(2)
	require.NoError(t, err)
	assert.Zero(t, r.P[2].At(0, 0))
}
