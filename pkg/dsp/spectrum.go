package dsp

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Spectrum is the one-sided magnitude spectrum of a Hann-windowed block.
type Spectrum struct {
	Frequencies []float64 // Hz, bin k at k*sampleRate/fftSize
	Magnitudes  []float64
	WindowSum   float64

	// Peak is the frequency of the strongest non-DC bin, 0 when the block
	// is too short to have one.
	Peak    float64
	PeakBin int
}

// DB converts the magnitudes to dB relative to a full-scale sinusoid of
// amplitude fullScale, floored at -150 dB.
func (s Spectrum) DB(fullScale float64) []float64 {
	out := make([]float64, len(s.Magnitudes))
	reference := fullScale * s.WindowSum / 2
	for i, mag := range s.Magnitudes {
		if mag > 0 && reference > 0 {
			out[i] = 20 * math.Log10(mag/reference)
		} else {
			out[i] = -150.0
		}
	}
	return out
}

// Analyzer computes spectra for blocks of varying length. Windows and FFT
// plans are cached per size. An Analyzer is not safe for concurrent use.
type Analyzer struct {
	windows map[int][]float64
	plans   map[int]*algofft.Plan[complex128]

	windowed []float64
	in, out  []complex128
	re, im   []float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		windows: make(map[int][]float64),
		plans:   make(map[int]*algofft.Plan[complex128]),
	}
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (a *Analyzer) plan(size int) (*algofft.Plan[complex128], error) {
	if p, ok := a.plans[size]; ok {
		return p, nil
	}
	p, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("dsp: fft plan for size %d: %w", size, err)
	}
	a.plans[size] = p
	return p, nil
}

func (a *Analyzer) window(n int) []float64 {
	if w, ok := a.windows[n]; ok {
		return w
	}
	w := Hann(n)
	a.windows[n] = w
	return w
}

// Analyze returns the spectrum of values, which should already be DC-free.
// The block is Hann-windowed and zero-padded to the next power of two. Ties
// between equal peak magnitudes resolve to the lowest frequency bin.
//
// Blocks shorter than two samples, a non-positive sample rate, or an FFT
// failure yield an empty spectrum with Peak 0.
func (a *Analyzer) Analyze(values []float64, sampleRate float64) Spectrum {
	n := len(values)
	if n < 2 || !(sampleRate > 0) {
		return Spectrum{}
	}

	win := a.window(n)
	a.windowed = grow(a.windowed, n)
	ApplyWindow(a.windowed, values, win)

	fftSize := nextPowerOf2(n)
	plan, err := a.plan(fftSize)
	if err != nil {
		return Spectrum{}
	}

	if cap(a.in) < fftSize {
		a.in = make([]complex128, fftSize)
		a.out = make([]complex128, fftSize)
	}
	a.in, a.out = a.in[:fftSize], a.out[:fftSize]
	for i := range a.in {
		if i < n {
			a.in[i] = complex(a.windowed[i], 0)
		} else {
			a.in[i] = 0
		}
	}
	if err := plan.Forward(a.out, a.in); err != nil {
		return Spectrum{}
	}

	bins := fftSize / 2
	a.re = grow(a.re, bins)
	a.im = grow(a.im, bins)
	for k := range bins {
		a.re[k] = real(a.out[k])
		a.im[k] = imag(a.out[k])
	}

	spec := Spectrum{
		Frequencies: make([]float64, bins),
		Magnitudes:  make([]float64, bins),
	}
	vecmath.Magnitude(spec.Magnitudes, a.re, a.im)
	for _, w := range win {
		spec.WindowSum += w
	}
	binHz := sampleRate / float64(fftSize)
	for k := range bins {
		spec.Frequencies[k] = float64(k) * binHz
	}

	best := math.Inf(-1)
	for k := 1; k < bins; k++ {
		m := spec.Magnitudes[k]
		if math.IsNaN(m) {
			continue
		}
		if m > best {
			best = m
			spec.PeakBin = k
		}
	}
	if spec.PeakBin > 0 {
		spec.Peak = spec.Frequencies[spec.PeakBin]
	}
	return spec
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
