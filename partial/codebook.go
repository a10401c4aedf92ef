package partial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// maxCodebookBits bounds exhaustive search to 2^16 candidates.
const maxCodebookBits = 16

// Codebook minimizes over switching controls: every coordinate of the first
// control is either -Amplitude or +Amplitude. All 2^m codewords are evaluated,
// so the result is the exact minimum over the codebook. A Codebook caches its
// codewords and is not safe for concurrent use.
type Codebook struct {
	Amplitude float64

	amplitude float64
	cache     [][]float64
	computed  []bool
}

// NewCodebook returns a codebook of ±amplitude switching controls.
func NewCodebook(amplitude float64) *Codebook {
	return &Codebook{Amplitude: amplitude}
}

// Minimize evaluates f on every codeword with the dimension of x0. Ties keep
// the lowest index, the codeword of all -Amplitude coming first.
func (c *Codebook) Minimize(f func(x []float64) float64, x0 []float64) (Solution, error) {
	m := len(x0)
	if m == 0 || m > maxCodebookBits {
		return Solution{}, fmt.Errorf("partial: codebook over %d dimensional controls", m)
	}
	if len(c.cache) != 1<<uint(m) || c.amplitude != c.Amplitude {
		c.amplitude = c.Amplitude
		c.cache = make([][]float64, 1<<uint(m))
		c.computed = make([]bool, 1<<uint(m))
	}

	best := Solution{F: math.Inf(1)}
	bestIndex := -1
	for codeWord := range c.cache {
		x := c.vector(uint(codeWord), m)
		cost := f(x)
		best.Evaluations++
		if cost < best.F {
			best.F = cost
			bestIndex = codeWord
		}
	}
	if bestIndex < 0 {
		// Every codeword was infeasible.
		return Solution{}, &ConvergenceError{Status: optimize.Failure, Err: fmt.Errorf("no finite cost among %d codewords", len(c.cache))}
	}
	best.X = append([]float64(nil), c.vector(uint(bestIndex), m)...)
	return best, nil
}

// vector returns the cached codeword, computing it on first use.
func (c *Codebook) vector(codeWord uint, length int) []float64 {
	if !c.computed[codeWord] {
		bits := indexToBits(codeWord, length)
		res := make([]float64, length)
		for bit := range bits {
			res[bit] = c.Amplitude * float64(int(bits[bit])*2-1)
		}
		c.cache[codeWord] = res
		c.computed[codeWord] = true
	}
	return c.cache[codeWord]
}

// indexToBits expands a codeword index into its bits, least significant first.
func indexToBits(index uint, length int) []uint {
	bits := make([]uint, length)
	for cont := range bits {
		if ((index >> uint(cont)) & 1) > 0 {
			bits[cont] = 1
		}
	}
	return bits
}
