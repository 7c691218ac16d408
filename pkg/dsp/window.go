package dsp

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Hann returns the symmetric Hann window of length n.
func Hann(n int) []float64 {
	return cosineWindow(n, 0.5, 0.5)
}

// Hamming returns the symmetric Hamming window of length n.
func Hamming(n int) []float64 {
	return cosineWindow(n, 0.54, 0.46)
}

func cosineWindow(n int, a0, a1 float64) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = a0 - a1*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// ApplyWindow multiplies samples by coeffs into dst. All slices must have
// the same length.
func ApplyWindow(dst, samples, coeffs []float64) {
	vecmath.MulBlock(dst, samples, coeffs)
}
