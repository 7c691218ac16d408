// Package dsp holds the numeric stages of the streaming pipeline:
// calibration, DC removal, spectral cutoff estimation and the adaptive
// low-pass FIR filter.
//
// Degenerate inputs never produce errors. Every stage reports "no result"
// with the Invalid sentinel (NaN) so that a stream keeps flowing.
package dsp

import "math"

// FullScale is the ADC code that maps to an input of 1.0 (0x80000000).
const FullScale = float64(1 << 31)

// Invalid returns the sentinel used for samples with no valid result.
func Invalid() float64 {
	return math.NaN()
}

// IsInvalid reports whether v is the sentinel (or otherwise not a number).
func IsInvalid(v float64) bool {
	return math.IsNaN(v)
}

// Calibration maps raw ADC codes to physical weight.
type Calibration struct {
	Zero  float64
	Scale float64
}

// DefaultCalibration holds the load-cell constants used in production.
var DefaultCalibration = Calibration{
	Zero:  0.01823035255075,
	Scale: 0.00000451794631,
}

// Weight converts a raw code: (raw/2^31 - Zero) / Scale. A zero Scale yields
// the Invalid sentinel.
func (c Calibration) Weight(raw float64) float64 {
	if c.Scale == 0 {
		return Invalid()
	}
	return (raw/FullScale - c.Zero) / c.Scale
}

// Raw is the inverse of Weight.
func (c Calibration) Raw(weight float64) float64 {
	return (weight*c.Scale + c.Zero) * FullScale
}

// Weights converts a sequence of raw codes into dst, growing it if needed.
func (c Calibration) Weights(dst []float64, raws []int64) []float64 {
	if cap(dst) < len(raws) {
		dst = make([]float64, len(raws))
	}
	dst = dst[:len(raws)]
	for i, r := range raws {
		dst[i] = c.Weight(float64(r))
	}
	return dst
}
