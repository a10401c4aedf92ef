// Package convex provides partially input-convex mappings: real functions
// f(x, y) that are convex in x for every parameter y. Used as the tail of a
// cost-to-go with x the control and y the state, minimizing over the first
// control of a slice remains a convex problem.
package convex

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape is returned for mappings and inputs of inconsistent sizes.
var ErrShape = errors.New("convex: inconsistent shape")

// Activation is applied entrywise.
type Activation func(float64) float64

// ELU is x for x > 0 and exp(x) - 1 otherwise. Convex and increasing.
func ELU(x float64) float64 {
	if x > 0 {
		return x
	}
	return math.Expm1(x)
}

// ReLU is max(x, 0).
func ReLU(x float64) float64 {
	return math.Max(x, 0)
}

// Identity returns x.
func Identity(x float64) float64 {
	return x
}

// Layer is the map x -> Activation(Weights x + Bias). A nil Bias adds nothing
// and a nil Activation is the identity.
type Layer struct {
	Weights    *mat.Dense
	Bias       *mat.VecDense
	Activation Activation
}

// Apply evaluates the layer at x.
func (l Layer) Apply(x mat.Vector) *mat.VecDense {
	var res mat.VecDense
	res.MulVec(l.Weights, x)
	if l.Bias != nil {
		res.AddVec(&res, l.Bias)
	}
	if l.Activation != nil {
		for i := 0; i < res.Len(); i++ {
			res.SetVec(i, l.Activation(res.AtVec(i)))
		}
	}
	return &res
}

// PICNN is a partially input-convex network. With p the output of the
// parameter network Param at y, it computes
//
//	z(0) = x
//	z(k+1) = g_k(A_k (z(k) * u_k) + B_k (x * v_k) + w_k)
//
// where * is the entrywise product, u_k = ReLU(U_k p), v_k = V_k p,
// w_k = W_k p and A_k = exp(RawA_k) entrywise. The nonnegative A_k and u_k
// together with convex increasing activations g_k keep every z(k) convex in
// x, whatever the parameters.
type PICNN struct {
	Param   []Layer
	RawA    []*mat.Dense
	B       []*mat.Dense
	U, V, W []Layer
	// Hidden is g_k for all but the last layer, Output is the last.
	Hidden, Output Activation
}

// New returns a PICNN with layer sizes inputs, the last being the scalar
// output, and parameter network sizes params. A one element params feeds y
// through unchanged. Weights are drawn from src the way dense layers are
// usually initialised; RawA is drawn from [-1, 0].
func New(inputs, params []int, src rand.Source) (*PICNN, error) {
	if len(inputs) < 2 || inputs[len(inputs)-1] != 1 || len(params) < 1 {
		return nil, fmt.Errorf("%w: input sizes %v with parameter sizes %v", ErrShape, inputs, params)
	}
	for _, n := range append(append([]int(nil), inputs...), params...) {
		if n < 1 {
			return nil, fmt.Errorf("%w: input sizes %v with parameter sizes %v", ErrShape, inputs, params)
		}
	}
	n := &PICNN{Hidden: ELU, Output: Identity}
	for i := 0; i+1 < len(params); i++ {
		activation := Activation(ELU)
		if i+2 == len(params) {
			activation = nil
		}
		n.Param = append(n.Param, layer(params[i+1], params[i], true, activation, src))
	}
	m := params[len(params)-1]
	for k := 0; k+1 < len(inputs); k++ {
		rawA := uniform(inputs[k+1], inputs[k], -1, 0, src)
		n.RawA = append(n.RawA, rawA)
		n.B = append(n.B, layer(inputs[k+1], inputs[0], false, nil, src).Weights)
		n.U = append(n.U, layer(inputs[k], m, true, ReLU, src))
		n.V = append(n.V, layer(inputs[0], m, true, nil, src))
		n.W = append(n.W, layer(inputs[k+1], m, true, nil, src))
	}
	return n, nil
}

func layer(rows, cols int, bias bool, activation Activation, src rand.Source) Layer {
	bound := 1 / math.Sqrt(float64(cols))
	l := Layer{Weights: uniform(rows, cols, -bound, bound, src), Activation: activation}
	if bias {
		l.Bias = mat.NewVecDense(rows, uniform(rows, 1, -bound, bound, src).RawMatrix().Data)
	}
	return l
}

func uniform(rows, cols int, lo, hi float64, src rand.Source) *mat.Dense {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: src}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(rows, cols, data)
}

// Len returns the number of convex layers.
func (n *PICNN) Len() int {
	return len(n.RawA)
}

// A returns the nonnegative weights exp(RawA_k).
func (n *PICNN) A(k int) *mat.Dense {
	var a mat.Dense
	a.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, n.RawA[k])
	return &a
}

// Apply evaluates the network at input x and parameter y.
func (n *PICNN) Apply(x, y mat.Vector) (*mat.VecDense, error) {
	if n.Len() == 0 {
		return nil, fmt.Errorf("%w: no convex layers", ErrShape)
	}
	if _, c := n.B[0].Dims(); x.Len() != c {
		return nil, fmt.Errorf("%w: input of length %d, expected %d", ErrShape, x.Len(), c)
	}
	p := mat.VecDenseCopyOf(y)
	for _, l := range n.Param {
		if _, c := l.Weights.Dims(); p.Len() != c {
			return nil, fmt.Errorf("%w: parameter of length %d, expected %d", ErrShape, p.Len(), c)
		}
		p = l.Apply(p)
	}
	if _, c := n.U[0].Weights.Dims(); p.Len() != c {
		return nil, fmt.Errorf("%w: parameter of length %d, expected %d", ErrShape, p.Len(), c)
	}

	z := mat.VecDenseCopyOf(x)
	for k := 0; k < n.Len(); k++ {
		var zu, xv, next, tmp mat.VecDense
		zu.MulElemVec(z, n.U[k].Apply(p))
		xv.MulElemVec(x, n.V[k].Apply(p))
		next.MulVec(n.A(k), &zu)
		tmp.MulVec(n.B[k], &xv)
		next.AddVec(&next, &tmp)
		next.AddVec(&next, n.W[k].Apply(p))

		g := n.Hidden
		if k == n.Len()-1 {
			g = n.Output
		}
		if g != nil {
			for i := 0; i < next.Len(); i++ {
				next.SetVec(i, g(next.AtVec(i)))
			}
		}
		z = &next
	}
	return z, nil
}

// Value returns the scalar output at control x and state y, convex in x. It
// panics on inconsistent shapes, like the gonum routines it builds on.
func (n *PICNN) Value(x, y mat.Vector) float64 {
	z, err := n.Apply(x, y)
	if err != nil {
		panic(err)
	}
	return z.AtVec(0)
}

// visit calls fn with the backing slice of every trainable parameter, in a
// fixed order.
func (n *PICNN) visit(fn func(data []float64)) {
	layers := func(ls []Layer) {
		for _, l := range ls {
			fn(l.Weights.RawMatrix().Data)
			if l.Bias != nil {
				fn(l.Bias.RawVector().Data)
			}
		}
	}
	layers(n.Param)
	for k := range n.RawA {
		fn(n.RawA[k].RawMatrix().Data)
		fn(n.B[k].RawMatrix().Data)
	}
	layers(n.U)
	layers(n.V)
	layers(n.W)
}

// Parameters returns a copy of all trainable parameters.
func (n *PICNN) Parameters() []float64 {
	var res []float64
	n.visit(func(data []float64) {
		res = append(res, data...)
	})
	return res
}

// SetParameters overwrites the trainable parameters with theta, in the order
// of Parameters.
func (n *PICNN) SetParameters(theta []float64) error {
	if len(theta) != len(n.Parameters()) {
		return fmt.Errorf("%w: %d parameters, expected %d", ErrShape, len(theta), len(n.Parameters()))
	}
	offset := 0
	n.visit(func(data []float64) {
		offset += copy(data, theta[offset:])
	})
	return nil
}
