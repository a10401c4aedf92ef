package problem

import (
	"fmt"

	"github.com/rwlmu/ml-adp/gonumExtensions"
	"github.com/rwlmu/ml-adp/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Riccati is the solution of the finite horizon discrete Riccati recursion of
// a LinearQuadratic problem. P[k] is the cost-to-go matrix from stage k, so
// x' P[0] x is the optimal cost from x, and Gain[k] the optimal feedback
// u(k) = -Gain[k] x(k).
type Riccati struct {
	P    []*mat.Dense
	Gain []*mat.Dense
}

// Riccati runs the backward recursion over the first length stages
//
// S = R + Bd' P Bd
//
// K = S^-1 Bd' P Ad
//
// P <- Q + Ad' P Ad - Ad' P Bd K
//
// starting from Qf, or zero, at the last stage. length may be shorter than the
// horizon, in which case the terminal weight is not applied.
func (lq *LinearQuadratic) Riccati(length int) (*Riccati, error) {
	if length < 1 || length > lq.Horizon {
		return nil, fmt.Errorf("%w: riccati length %d for horizon %d", ErrInvalidProblem, length, lq.Horizon)
	}
	n := lq.Model.StateSpaceOrder()
	A, B := lq.Model.Ad, lq.Model.Bd

	P := mat.NewDense(n, n, nil)
	if lq.Qf != nil && length == lq.Horizon {
		P.Copy(lq.Qf)
	}
	res := &Riccati{
		P:    make([]*mat.Dense, length+1),
		Gain: make([]*mat.Dense, length),
	}
	res.P[length] = mat.DenseCopyOf(P)

	var PA, PB, S, BPA, gain, APB, APBK, next mat.Dense
	for k := length - 1; k >= 0; k-- {
		PA.Mul(P, A)
		PB.Mul(P, B)
		// S = R + B' P B
		S.Mul(B.T(), &PB)
		S.Add(&S, lq.R)
		// K = S^-1 B' P A
		BPA.Mul(B.T(), &PA)
		gain.Reset()
		if err := gain.Solve(&S, &BPA); err != nil {
			return nil, fmt.Errorf("problem: riccati stage %d: %w", k, err)
		}
		// P = Q + A' P A - A' P B K
		next.Mul(A.T(), &PA)
		APB.Mul(A.T(), &PB)
		APBK.Mul(&APB, &gain)
		next.Sub(&next, &APBK)
		next.Add(&next, lq.Q)
		// keep P symmetric against round off
		var sym mat.Dense
		sym.Add(&next, next.T())
		sym.Scale(0.5, &sym)

		P = mat.DenseCopyOf(&sym)
		res.P[k] = P
		res.Gain[k] = mat.DenseCopyOf(&gain)
		if gonumExtensions.NANORINF(P) {
			return nil, fmt.Errorf("problem: riccati stage %d diverged", k)
		}
	}
	return res, nil
}

// Cost returns x' P[stage] x, the optimal cost from x at stage.
func (r *Riccati) Cost(stage int, x mat.Vector) float64 {
	return gonumExtensions.QuadraticForm(x, r.P[stage])
}

// Control returns the optimal feedback -Gain[stage] x.
func (r *Riccati) Control(stage int, x mat.Vector) *mat.VecDense {
	rows, _ := r.Gain[stage].Dims()
	u := mat.NewVecDense(rows, nil)
	u.MulVec(r.Gain[stage], x)
	u.ScaleVec(-1, u)
	return u
}

// Trajectory rolls the optimal feedback forward from x0 through dyn.
func (r *Riccati) Trajectory(x0 mat.Vector, dyn trajectory.Dynamics) trajectory.Trajectory {
	t := make(trajectory.Trajectory, len(r.Gain))
	state := mat.VecDenseCopyOf(x0)
	for k := range t {
		u := r.Control(k, state)
		t[k] = trajectory.Step{State: state, Control: u}
		state = mat.VecDenseCopyOf(dyn.Dynamics(state, u))
	}
	return t
}
