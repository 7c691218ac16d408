// Package pipeline reconstructs a calibrated, low-pass filtered signal from
// raw ADC samples, one sample at a time.
//
// For every arriving sample the pipeline pushes the raw code into a sliding
// window, estimates the dominant frequency of the DC-free window, designs a
// low-pass FIR at that cutoff, filters the window and reports the newest
// filtered output next to the calibrated raw value.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/adcstream/pkg/dsp"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/ring"
	"github.com/adcstream/pkg/sink"
	"github.com/rs/zerolog"
)

const (
	DefaultWindow     = 256
	DefaultMinHistory = 256
)

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	// Window is the sliding window capacity W.
	Window int
	// MinHistory is the number of samples, besides the tap count, the
	// window must hold before filtering starts. Clamped to Window.
	MinHistory int
	Taps       int

	Calibration dsp.Calibration

	// Pace delays each emitted pair, for live playback of recorded data.
	Pace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinHistory <= 0 {
		c.MinHistory = DefaultMinHistory
	}
	if c.MinHistory > c.Window {
		c.MinHistory = c.Window
	}
	if c.Taps <= 0 {
		c.Taps = dsp.DefaultTaps
	}
	if c.Calibration == (dsp.Calibration{}) {
		c.Calibration = dsp.DefaultCalibration
	}
	return c
}

// Threshold is the window fill level at which filtering starts.
func (c Config) Threshold() int {
	c = c.withDefaults()
	return max(c.Taps, c.MinHistory)
}

// SampleRate converts the producer's send interval into the sample rate the
// spectral stage assumes. A zero interval yields 1 Hz.
func SampleRate(intervalMS uint32) float64 {
	if intervalMS == 0 {
		return 1.0
	}
	return 1000.0 / float64(intervalMS)
}

// Batch is the content of one source frame.
type Batch struct {
	Source     string
	Samples    []int64
	Skipped    int
	IntervalMS uint32
}

// Pipeline processes batches sequentially. It is not safe for concurrent
// use; run one Pipeline per worker.
type Pipeline struct {
	cfg      Config
	window   *ring.Window
	analyzer *dsp.Analyzer
	stage    *dsp.LowPassStage

	sink    sink.Sink
	metrics *metrics.Metrics
	log     zerolog.Logger

	raw, ac   []float64
	weights   []float64
	filtered  []float64
	spectrum  dsp.Spectrum
	cutoff    float64
	paceTimer *time.Timer
}

// Option configures optional collaborators.
type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New returns a pipeline reporting to s. The window must be able to hold
// the full filter length.
func New(cfg Config, s sink.Sink, opts ...Option) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if cfg.Window < cfg.Taps {
		return nil, fmt.Errorf("pipeline: window %d shorter than %d filter taps", cfg.Window, cfg.Taps)
	}
	w, err := ring.New(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{
		cfg:      cfg,
		window:   w,
		analyzer: dsp.NewAnalyzer(),
		stage:    dsp.NewLowPassStage(cfg.Taps),
		sink:     s,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process runs every sample of b through the pipeline and emits one pair per
// sample, in order. The sliding window starts empty for each batch. The DC
// offset is the mean of the whole batch. Process returns ctx.Err() if ctx is
// cancelled part way; pairs already emitted stay emitted.
func (p *Pipeline) Process(ctx context.Context, b Batch) (sink.Summary, error) {
	rate := SampleRate(b.IntervalMS)
	dc := dsp.MeanInt64(b.Samples)
	threshold := p.cfg.Threshold()
	cal := p.cfg.Calibration

	p.window.Reset()
	p.spectrum = dsp.Spectrum{}
	p.cutoff = 0
	p.weights = p.weights[:0]
	p.filtered = p.filtered[:0]

	observer, _ := p.sink.(sink.SourceObserver)
	if observer != nil {
		observer.BeginSource(b.Source, len(b.Samples))
	}

	summary := sink.Summary{
		Source:       b.Source,
		SkippedLines: b.Skipped,
		DCOffset:     dc,
		SampleRate:   rate,
	}

	for i, raw := range b.Samples {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		weight := cal.Weight(float64(raw))
		p.window.Push(float64(raw))

		filtered := dsp.Invalid()
		if p.window.Len() >= threshold {
			filtered = p.filterLatest(dc, rate)
		}

		pair := sink.Pair{Index: i, Raw: raw, Weight: weight, Filtered: filtered}
		p.sink.EmitSamplePair(b.Source, pair)
		p.metrics.SampleProcessed(pair.Valid())

		p.weights = append(p.weights, weight)
		summary.Samples++
		if pair.Valid() {
			p.filtered = append(p.filtered, filtered)
		} else {
			summary.Invalid++
		}

		if err := p.pace(ctx); err != nil {
			return summary, err
		}
	}

	summary.RawAmplitude, _ = dsp.PeakToPeak(p.weights)
	summary.FiltAmplitude, _ = dsp.PeakToPeak(p.filtered)
	summary.Cutoff = p.cutoff
	if c := p.stage.Coefficients(); c != nil {
		summary.Coefficients = append([]float64(nil), c...)
	}
	summary.Frequencies = p.spectrum.Frequencies
	summary.Magnitudes = p.spectrum.Magnitudes

	p.log.Debug().
		Str("source", b.Source).
		Int("samples", summary.Samples).
		Int("invalid", summary.Invalid).
		Float64("cutoff_hz", summary.Cutoff).
		Msg("batch processed")

	if observer != nil {
		observer.EndSource(b.Source, summary)
	}
	return summary, nil
}

// filterLatest returns the filtered weight for the newest sample in the
// window, or the sentinel.
func (p *Pipeline) filterLatest(dc, rate float64) float64 {
	p.raw = p.window.Snapshot(p.raw)
	p.ac = dsp.RemoveDC(p.ac, p.raw, dc)

	spec := p.analyzer.Analyze(p.ac, rate)
	p.spectrum = spec
	if spec.PeakBin == 0 {
		p.cutoff = 0
		return dsp.Invalid()
	}
	p.cutoff = spec.Peak
	p.metrics.Cutoff(spec.Peak)

	y := p.stage.Latest(p.ac, spec.Peak, rate)
	if dsp.IsInvalid(y) {
		return y
	}
	return p.cfg.Calibration.Weight(y + dc)
}

func (p *Pipeline) pace(ctx context.Context) error {
	if p.cfg.Pace <= 0 {
		return nil
	}
	if p.paceTimer == nil {
		p.paceTimer = time.NewTimer(p.cfg.Pace)
	} else {
		p.paceTimer.Reset(p.cfg.Pace)
	}
	select {
	case <-ctx.Done():
		p.paceTimer.Stop()
		return ctx.Err()
	case <-p.paceTimer.C:
		return nil
	}
}
