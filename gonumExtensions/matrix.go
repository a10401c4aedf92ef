package gonumExtensions

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns an (n by n) identity matrix scaled by gain.
func Eye(n int, gain float64) *mat.DiagDense {
	data := make([]float64, n)
	for entry := range data {
		data[entry] = gain
	}
	return mat.NewDiagDense(n, data)
}

// NANORINF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if !Finite(matrix.At(row, col)) {
				return true
			}
		}
	}
	return false
}

// Finite reports whether x is neither NaN nor +-Inf.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// QuadraticForm returns x' M x.
func QuadraticForm(x mat.Vector, M mat.Matrix) float64 {
	var tmp mat.VecDense
	tmp.MulVec(M, x)
	return mat.Dot(x, &tmp)
}

// VecData copies the entries of v into a new slice.
func VecData(v mat.Vector) []float64 {
	res := make([]float64, v.Len())
	for index := range res {
		res[index] = v.AtVec(index)
	}
	return res
}
