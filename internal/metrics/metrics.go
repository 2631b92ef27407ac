// Package metrics exposes Prometheus metrics for archive downloads.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "archive_server"

// Outcome labels how an archive request ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeLaunchError  Outcome = "launch_error"
	OutcomeFailed       Outcome = "failed"
)

// Metrics holds the archive download collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests *prometheus.CounterVec
	bytes    prometheus.Counter
	chunks   prometheus.Counter
	inFlight prometheus.Gauge
	duration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Count of archive requests by outcome.",
			},
			[]string{"outcome"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Archive bytes written to clients.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_chunks_total",
			Help:      "Archive chunks written to clients.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_in_flight",
			Help:      "Archives currently being streamed.",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stream_duration_seconds",
				Help:      "Time from request to the end of the archive stream.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.requests, m.bytes, m.chunks, m.inFlight, m.duration)
	return m
}

// StreamStarted marks a stream as in flight. The returned func undoes it.
func (m *Metrics) StreamStarted() (done func()) {
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Observe records a finished archive request.
func (m *Metrics) Observe(outcome Outcome, chunks int, bytes int64, d time.Duration) {
	m.requests.WithLabelValues(string(outcome)).Inc()
	m.chunks.Add(float64(chunks))
	m.bytes.Add(float64(bytes))
	m.duration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
