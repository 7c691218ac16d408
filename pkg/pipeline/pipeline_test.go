package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/adcstream/pkg/dsp"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/queue"
	"github.com/adcstream/pkg/sink"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toneSamples returns raw codes for a weight signal of base + amp*sin(2*pi*f*t).
func toneSamples(n int, base, amp, freq, rate float64) []int64 {
	out := make([]int64, n)
	for i := range out {
		w := base + amp*math.Sin(2*math.Pi*freq*float64(i)/rate)
		out[i] = int64(math.Round(dsp.DefaultCalibration.Raw(w)))
	}
	return out
}

func newTestPipeline(t *testing.T, cfg Config, opts ...Option) (*Pipeline, *sink.Recorder) {
	t.Helper()
	rec := sink.NewRecorder()
	p, err := New(cfg, rec, opts...)
	require.NoError(t, err)
	return p, rec
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultWindow, cfg.Window)
	assert.Equal(t, DefaultMinHistory, cfg.MinHistory)
	assert.Equal(t, dsp.DefaultTaps, cfg.Taps)
	assert.Equal(t, dsp.DefaultCalibration, cfg.Calibration)
	assert.Equal(t, 256, Config{}.Threshold())

	cfg = Config{Window: 100, MinHistory: 500}.withDefaults()
	assert.Equal(t, 100, cfg.MinHistory)
	assert.Equal(t, 51, Config{Window: 100, MinHistory: 10}.Threshold())
}

func TestNewRejectsWindowShorterThanFilter(t *testing.T) {
	_, err := New(Config{Window: 20}, sink.NewRecorder())
	assert.Error(t, err)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 50.0, SampleRate(20))
	assert.Equal(t, 1.0, SampleRate(0))
	assert.Equal(t, 1000.0, SampleRate(1))
}

func TestOnePairPerSampleInOrder(t *testing.T) {
	p, rec := newTestPipeline(t, Config{})
	samples := toneSamples(300, 120, 15, 50.0*8/256, 50)

	summary, err := p.Process(context.Background(), Batch{Source: "s.txt", Samples: samples, IntervalMS: 20})
	require.NoError(t, err)

	pairs := rec.Pairs("s.txt")
	require.Len(t, pairs, len(samples))
	for i, pair := range pairs {
		assert.Equal(t, i, pair.Index)
		assert.Equal(t, samples[i], pair.Raw)
		assert.InDelta(t, dsp.DefaultCalibration.Weight(float64(samples[i])), pair.Weight, 1e-9)
	}

	// insufficient history before the threshold
	for _, pair := range pairs[:255] {
		assert.False(t, pair.Valid(), "index %d", pair.Index)
	}
	for _, pair := range pairs[255:] {
		require.True(t, pair.Valid(), "index %d", pair.Index)
		assert.GreaterOrEqual(t, pair.Filtered, 100.0)
		assert.LessOrEqual(t, pair.Filtered, 140.0)
	}

	assert.Equal(t, 300, summary.Samples)
	assert.Equal(t, 255, summary.Invalid)
	assert.InDelta(t, dsp.MeanInt64(samples), summary.DCOffset, 1e-6)
	assert.InDelta(t, 30, summary.RawAmplitude, 0.5)
	assert.InDelta(t, 50.0*8/256, summary.Cutoff, 50.0/256)
	assert.Len(t, summary.Coefficients, dsp.DefaultTaps)
	assert.Len(t, summary.Magnitudes, 128)
	assert.Equal(t, 50.0, summary.SampleRate)

	require.Len(t, rec.Summaries(), 1)
	assert.Equal(t, "s.txt", rec.Summaries()[0].Source)
}

func TestShortSequenceIsAllSentinel(t *testing.T) {
	p, rec := newTestPipeline(t, Config{})
	samples := toneSamples(40, 100, 5, 2, 50)
	summary, err := p.Process(context.Background(), Batch{Source: "short", Samples: samples, IntervalMS: 20})
	require.NoError(t, err)
	for _, pair := range rec.Pairs("short") {
		assert.True(t, math.IsNaN(pair.Filtered))
	}
	assert.Equal(t, 40, summary.Invalid)
	assert.Nil(t, summary.Coefficients)
}

func TestConstantSignalReconstructsExactly(t *testing.T) {
	p, rec := newTestPipeline(t, Config{Window: 64, MinHistory: 64})
	samples := make([]int64, 100)
	for i := range samples {
		samples[i] = 39151000
	}
	_, err := p.Process(context.Background(), Batch{Source: "flat", Samples: samples, IntervalMS: 10})
	require.NoError(t, err)

	pairs := rec.Pairs("flat")
	for _, pair := range pairs[:63] {
		assert.False(t, pair.Valid())
	}
	for _, pair := range pairs[63:] {
		require.True(t, pair.Valid())
		assert.InDelta(t, pair.Weight, pair.Filtered, 1e-6)
	}
}

func TestWindowResetsBetweenBatches(t *testing.T) {
	p, rec := newTestPipeline(t, Config{Window: 64, MinHistory: 64})
	ctx := context.Background()
	first := toneSamples(100, 100, 5, 4, 50)
	second := toneSamples(10, 100, 5, 4, 50)

	_, err := p.Process(ctx, Batch{Source: "a", Samples: first, IntervalMS: 20})
	require.NoError(t, err)
	_, err = p.Process(ctx, Batch{Source: "b", Samples: second, IntervalMS: 20})
	require.NoError(t, err)

	for _, pair := range rec.Pairs("b") {
		assert.False(t, pair.Valid())
	}
}

func TestZeroScaleCalibrationYieldsSentinels(t *testing.T) {
	cal := dsp.Calibration{Zero: 0.01, Scale: 0}
	p, rec := newTestPipeline(t, Config{Window: 64, MinHistory: 64, Calibration: cal})
	_, err := p.Process(context.Background(), Batch{Source: "x", Samples: toneSamples(80, 100, 5, 4, 50), IntervalMS: 20})
	require.NoError(t, err)
	for _, pair := range rec.Pairs("x") {
		assert.True(t, math.IsNaN(pair.Weight))
		assert.True(t, math.IsNaN(pair.Filtered))
	}
}

func TestProcessStopsOnCancel(t *testing.T) {
	p, rec := newTestPipeline(t, Config{Pace: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.Process(ctx, Batch{Source: "slow", Samples: toneSamples(1000, 100, 5, 4, 50), IntervalMS: 20})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	n := len(rec.Pairs("slow"))
	assert.Greater(t, n, 0)
	assert.Less(t, n, 1000)
}

func TestMetricsCountSamples(t *testing.T) {
	m := metrics.New()
	p, _ := newTestPipeline(t, Config{Window: 64, MinHistory: 64}, WithMetrics(m))
	_, err := p.Process(context.Background(), Batch{Source: "m", Samples: toneSamples(70, 100, 5, 4, 50), IntervalMS: 20})
	require.NoError(t, err)

	out, err := testutil.GatherAndCount(m.Registry(), "adcstream_pipeline_samples_processed_total", "adcstream_pipeline_invalid_filtered_total")
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.Contains(t, gatherText(t, m), "adcstream_pipeline_samples_processed_total 70")
	assert.Contains(t, gatherText(t, m), "adcstream_pipeline_invalid_filtered_total 63")
}

func TestRunDrainsQueueInOrder(t *testing.T) {
	p, rec := newTestPipeline(t, Config{Window: 64, MinHistory: 64})
	q := queue.New[Batch](2)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, q, 10*time.Millisecond) }()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, q.Push(ctx, Batch{Source: name, Samples: toneSamples(70, 100, 5, 4, 50), IntervalMS: 20}))
	}
	q.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after the queue closed")
	}
	assert.Equal(t, []string{"one", "two", "three"}, rec.Sources())
	for _, name := range rec.Sources() {
		assert.Len(t, rec.Pairs(name), 70)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	p, _ := newTestPipeline(t, Config{})
	q := queue.New[Batch](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, q, 10*time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker ignored cancellation")
	}
}
