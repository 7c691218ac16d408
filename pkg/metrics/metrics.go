// Package metrics holds the Prometheus collectors for the producer and
// consumer. Every method is a no-op on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adcstream"

type Metrics struct {
	registry *prometheus.Registry

	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	samples        prometheus.Counter
	linesSkipped   prometheus.Counter
	invalid        prometheus.Counter
	queueDepth     prometheus.Gauge
	sessions       *prometheus.CounterVec
	cutoff         prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "frames_sent_total",
			Help:      "Frames written to the peer, by kind",
		}, []string{"kind"}),
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "frames_received_total",
			Help:      "Frames decoded from the producer, by kind",
		}, []string{"kind"}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "source_bytes_received_total",
			Help:      "Source payload bytes received",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "samples_processed_total",
			Help:      "Samples that produced an output pair",
		}),
		linesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "lines_skipped_total",
			Help:      "Sample lines that could not be parsed",
		}),
		invalid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "invalid_filtered_total",
			Help:      "Samples whose filtered value is the invalid sentinel",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Sample batches waiting for the pipeline worker",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions, by role and terminal status",
		}, []string{"role", "status"}),
		cutoff: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "cutoff_hz",
			Help:      "Most recent adaptive cutoff estimate",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FrameSent(kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) SourceBytes(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) LinesSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesSkipped.Add(float64(n))
}

// SampleProcessed counts one emitted pair and whether its filtered value was
// the sentinel.
func (m *Metrics) SampleProcessed(valid bool) {
	if m == nil {
		return
	}
	m.samples.Inc()
	if !valid {
		m.invalid.Inc()
	}
}

func (m *Metrics) QueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) Cutoff(hz float64) {
	if m == nil {
		return
	}
	m.cutoff.Set(hz)
}

func (m *Metrics) SessionEnded(role, status string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(role, status).Inc()
}
