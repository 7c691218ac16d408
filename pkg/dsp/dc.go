package dsp

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// MeanInt64 returns the arithmetic mean of raw ADC codes.
func MeanInt64(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs))
}

// RemoveDC writes src - offset into dst and returns it. dst may alias src.
func RemoveDC(dst, src []float64, offset float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, x := range src {
		dst[i] = x - offset
	}
	return dst
}

// PeakToPeak returns max-min over the valid entries of xs. ok is false when
// no entry is valid.
func PeakToPeak(xs []float64) (amplitude float64, ok bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo = min(lo, x)
		hi = max(hi, x)
		ok = true
	}
	if !ok {
		return Invalid(), false
	}
	return hi - lo, true
}
