package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, freq, sampleRate, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func TestCalibrationInverse(t *testing.T) {
	c := DefaultCalibration
	for _, weight := range []float64{-250, -1, 0, 0.5, 12.25, 640, 1e4} {
		raw := c.Raw(weight)
		assert.InDelta(t, weight, c.Weight(raw), 1e-6, "weight %v", weight)
	}

	raw := 39151000.0
	want := (raw/2147483648.0 - 0.01823035255075) / 0.00000451794631
	assert.InDelta(t, want, c.Weight(raw), 1e-9)
}

func TestCalibrationZeroScaleIsInvalid(t *testing.T) {
	c := Calibration{Zero: 0.1, Scale: 0}
	assert.True(t, IsInvalid(c.Weight(12345)))

	ws := c.Weights(nil, []int64{1, 2, 3})
	require.Len(t, ws, 3)
	for _, w := range ws {
		assert.True(t, IsInvalid(w))
	}
}

func TestMeanAndRemoveDC(t *testing.T) {
	raws := []int64{39150000, 39151000, 39152500, 39149000, 39153000}
	mean := MeanInt64(raws)

	var sum float64
	for _, r := range raws {
		sum += float64(r)
	}
	assert.InDelta(t, sum/float64(len(raws)), mean, 1e-9)

	xs := make([]float64, len(raws))
	for i, r := range raws {
		xs[i] = float64(r)
	}
	assert.InDelta(t, mean, Mean(xs), 1e-9)

	ac := RemoveDC(nil, xs, mean)
	assert.InDelta(t, 0, Mean(ac), 1e-6)

	// in place
	RemoveDC(xs, xs, mean)
	assert.Equal(t, ac, xs)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, MeanInt64(nil))
}

func TestPeakToPeakSkipsInvalid(t *testing.T) {
	amp, ok := PeakToPeak([]float64{math.NaN(), 3, -1, math.Inf(1), 2})
	assert.True(t, ok)
	assert.Equal(t, 4.0, amp)

	_, ok = PeakToPeak([]float64{math.NaN()})
	assert.False(t, ok)
}

func TestWindowsAreSymmetric(t *testing.T) {
	for _, n := range []int{2, 5, 51, 256} {
		for name, w := range map[string][]float64{"hann": Hann(n), "hamming": Hamming(n)} {
			require.Len(t, w, n)
			for i := range n / 2 {
				assert.InDelta(t, w[i], w[n-1-i], 1e-12, "%s n=%d i=%d", name, n, i)
			}
		}
	}
	assert.InDelta(t, 0, Hann(5)[0], 1e-12)
	assert.InDelta(t, 1, Hann(5)[2], 1e-12)
	assert.InDelta(t, 0.08, Hamming(5)[0], 1e-12)
	assert.Equal(t, []float64{1}, Hann(1))
	assert.Nil(t, Hamming(0))
}

func TestApplyWindow(t *testing.T) {
	dst := make([]float64, 3)
	ApplyWindow(dst, []float64{1, 2, 3}, []float64{0.5, 1, 2})
	assert.Equal(t, []float64{0.5, 2, 6}, dst)
}

func TestAnalyzerFindsDominantFrequency(t *testing.T) {
	const fs = 50.0
	a := NewAnalyzer()

	// bin-centred tone: 256-point block, 8 cycles -> 8 * 50/256 Hz
	freq := 8 * fs / 256
	spec := a.Analyze(sine(256, freq, fs, 1000), fs)
	require.Len(t, spec.Magnitudes, 128)
	assert.Equal(t, 8, spec.PeakBin)
	assert.InDelta(t, freq, spec.Peak, 1e-9)
	assert.InDelta(t, fs/256, spec.Frequencies[1], 1e-12)

	// non power of two blocks are zero padded
	spec = a.Analyze(sine(200, 5, fs, 1000), fs)
	require.Len(t, spec.Magnitudes, 128)
	assert.InDelta(t, 5, spec.Peak, fs/256)
}

func TestAnalyzerTieBreaksToLowestBin(t *testing.T) {
	a := NewAnalyzer()
	spec := a.Analyze(make([]float64, 64), 50)
	assert.Equal(t, 1, spec.PeakBin)
	assert.InDelta(t, 50.0/64, spec.Peak, 1e-12)
}

func TestAnalyzerDegenerateInput(t *testing.T) {
	a := NewAnalyzer()
	assert.Equal(t, 0.0, a.Analyze([]float64{1}, 50).Peak)
	assert.Equal(t, 0.0, a.Analyze(nil, 50).Peak)
	assert.Equal(t, 0.0, a.Analyze([]float64{1, 2, 3}, 0).Peak)
	assert.Equal(t, 0.0, a.Analyze([]float64{1, 2, 3}, math.NaN()).Peak)
}

func TestSpectrumDB(t *testing.T) {
	s := Spectrum{Magnitudes: []float64{0, 50, 100}, WindowSum: 200}
	db := s.DB(1)
	assert.Equal(t, -150.0, db[0])
	assert.InDelta(t, -6.0206, db[1], 1e-3)
	assert.InDelta(t, 0, db[2], 1e-9)
}

func TestNormalizedCutoff(t *testing.T) {
	n, ok := NormalizedCutoff(5, 25)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, n, 1e-12)

	n, ok = NormalizedCutoff(0, 25)
	assert.True(t, ok)
	assert.Equal(t, MinNormalizedCutoff, n)

	n, ok = NormalizedCutoff(30, 25)
	assert.True(t, ok)
	assert.Equal(t, MaxNormalizedCutoff, n)

	_, ok = NormalizedCutoff(5, 0)
	assert.False(t, ok)
	_, ok = NormalizedCutoff(math.NaN(), 25)
	assert.False(t, ok)
}

func TestTapCount(t *testing.T) {
	assert.Equal(t, 51, TapCount(51, 256))
	assert.Equal(t, 51, TapCount(51, 51))
	assert.Equal(t, 49, TapCount(51, 50))
	assert.Equal(t, 1, TapCount(51, 1))
	assert.Equal(t, 0, TapCount(51, 0))
}

func TestLowPassDesign(t *testing.T) {
	h := LowPass(51, 0.2)
	require.Len(t, h, 51)
	assert.True(t, Usable(h))

	var sum float64
	for i := range h {
		sum += h[i]
		assert.InDelta(t, h[i], h[50-i], 1e-12)
	}
	assert.InDelta(t, 1, sum, 1e-9)

	// centre tap dominates for a low-pass
	for i := range h {
		assert.LessOrEqual(t, h[i], h[25])
	}
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(nil))
	assert.False(t, Usable([]float64{0, 0, 0}))
	assert.False(t, Usable([]float64{1, math.NaN()}))
	assert.False(t, Usable([]float64{math.Inf(-1)}))
	assert.True(t, Usable([]float64{0, 1e-9}))
}

func TestLastOutputMatchesFilter(t *testing.T) {
	h := LowPass(11, 0.3)
	x := sine(64, 3, 50, 10)
	full := Filter(nil, h, x)
	assert.InDelta(t, full[len(full)-1], LastOutput(h, x), 1e-12)
}

func TestLowPassStage(t *testing.T) {
	const fs = 50.0
	s := NewLowPassStage(0)
	assert.Equal(t, DefaultTaps, s.Taps)

	// a slow tone passes a cutoff well above it with near unit gain
	x := sine(256, 1, fs, 100)
	y := s.Latest(x, 10, fs)
	assert.False(t, IsInvalid(y))
	assert.InDelta(t, x[len(x)-1-25], y, 5)
	assert.Len(t, s.Coefficients(), 51)

	// short windows truncate to an odd tap count
	y = s.Latest(x[:20], 10, fs)
	assert.False(t, IsInvalid(y))
	assert.Len(t, s.Coefficients(), 19)

	assert.True(t, IsInvalid(s.Latest(x, 10, 0)))
	assert.Nil(t, s.Coefficients())
	assert.True(t, IsInvalid(s.Latest(nil, 10, fs)))
	assert.True(t, IsInvalid(s.Latest(x, math.NaN(), fs)))

	// out of range cutoffs are clamped rather than rejected
	assert.False(t, IsInvalid(s.Latest(x, 0, fs)))
	assert.False(t, IsInvalid(s.Latest(x, fs, fs)))
}
