package dsp

import "math"

// DefaultTaps is the FIR length used by the adaptive low-pass stage.
const DefaultTaps = 51

// Normalized cutoff bounds used when the requested cutoff falls outside
// (0, nyquist).
const (
	MinNormalizedCutoff = 0.01
	MaxNormalizedCutoff = 0.99
)

// NormalizedCutoff maps a cutoff in Hz onto (0, 1) relative to nyquist.
// Cutoffs at or below 0 clamp to MinNormalizedCutoff, cutoffs at or above
// nyquist clamp to MaxNormalizedCutoff. ok is false when nyquist is not
// positive or the cutoff is not a number.
func NormalizedCutoff(cutoffHz, nyquist float64) (float64, bool) {
	if !(nyquist > 0) || math.IsNaN(cutoffHz) {
		return 0, false
	}
	switch {
	case cutoffHz <= 0:
		return MinNormalizedCutoff, true
	case cutoffHz >= nyquist:
		return MaxNormalizedCutoff, true
	}
	return cutoffHz / nyquist, true
}

// TapCount returns the tap count for a block of n samples: taps, truncated to
// n and forced odd. It returns 0 when no filter fits.
func TapCount(taps, n int) int {
	if taps > n {
		taps = n
		if taps%2 == 0 {
			taps--
		}
	}
	if taps < 1 {
		return 0
	}
	return taps
}

// LowPass designs a linear-phase low-pass FIR with a Hamming window.
// cutoff is normalized to nyquist and must lie in (0, 1). The coefficients
// are scaled to unit gain at DC.
func LowPass(numTaps int, cutoff float64) []float64 {
	if numTaps < 1 {
		return nil
	}
	h := make([]float64, numTaps)
	win := Hamming(numTaps)
	alpha := 0.5 * float64(numTaps-1)
	var sum float64
	for i := range h {
		m := float64(i) - alpha
		h[i] = cutoff * sinc(cutoff*m) * win[i]
		sum += h[i]
	}
	if sum != 0 {
		for i := range h {
			h[i] /= sum
		}
	}
	return h
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// Usable reports whether coeffs can be applied: non-empty, finite and not
// all zero.
func Usable(coeffs []float64) bool {
	if len(coeffs) == 0 {
		return false
	}
	nonZero := false
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
		if c != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// LastOutput returns the final sample of the causal convolution of x with h
// starting from a zero state, i.e. y[n-1] = sum_k h[k]*x[n-1-k].
func LastOutput(h, x []float64) float64 {
	n := len(x)
	var y float64
	for k := 0; k < len(h) && k < n; k++ {
		y += h[k] * x[n-1-k]
	}
	return y
}

// Filter applies h to x from a zero state and writes the full output to dst.
func Filter(dst, h, x []float64) []float64 {
	dst = grow(dst, len(x))
	for i := range x {
		var y float64
		for k := 0; k < len(h) && k <= i; k++ {
			y += h[k] * x[i-k]
		}
		dst[i] = y
	}
	return dst
}

// LowPassStage designs and applies the adaptive low-pass filter for one
// window at a time.
type LowPassStage struct {
	Taps int

	last []float64
}

// NewLowPassStage returns a stage with the given nominal tap count.
func NewLowPassStage(taps int) *LowPassStage {
	if taps <= 0 {
		taps = DefaultTaps
	}
	return &LowPassStage{Taps: taps}
}

// Latest filters the DC-free window ac with a low-pass at cutoffHz and
// returns the most recent output sample. It returns the Invalid sentinel when
// nyquist is not positive, no tap count fits the window, or the designed
// coefficients are degenerate.
func (s *LowPassStage) Latest(ac []float64, cutoffHz, sampleRate float64) float64 {
	s.last = nil
	norm, ok := NormalizedCutoff(cutoffHz, sampleRate/2)
	if !ok {
		return Invalid()
	}
	taps := TapCount(s.Taps, len(ac))
	if taps == 0 {
		return Invalid()
	}
	coeffs := LowPass(taps, norm)
	if !Usable(coeffs) {
		return Invalid()
	}
	s.last = coeffs
	return LastOutput(coeffs, ac)
}

// Coefficients returns the coefficients of the last successful design, or
// nil when the last call produced the sentinel.
func (s *LowPassStage) Coefficients() []float64 {
	return s.last
}
