// Package metrics provides Prometheus metrics for the ingestion pipeline
// and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"barrel-market-api/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	Submissions   *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	Batches       prometheus.Counter
	BatchDuration prometheus.Histogram

	// External calls
	InferenceLatency *prometheus.HistogramVec
	SellerLookups    *prometheus.CounterVec

	// Persistence
	Flushes      *prometheus.CounterVec
	RowsInserted prometheus.Counter

	// HTTP
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "barrel_market"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "submissions_total",
			Help:      "Processed submissions by terminal status and skip reason",
		}, []string{"status", "reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Submissions waiting for the drain loop",
		}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Dispatched batches",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch, excluding the cooldown wait",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		InferenceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "request_duration_seconds",
			Help:      "Latency of chat-completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"result"}),
		SellerLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "lookups_total",
			Help:      "Seller lookups by result (hit, resolved, unknown)",
		}, []string{"result"}),
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "flushes_total",
			Help:      "Bulk insert flushes by result",
		}, []string{"result"}),
		RowsInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows_inserted_total",
			Help:      "Records written by bulk inserts",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler returns the exposition handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Report records one submission outcome. It satisfies service.Reporter.
func (m *Metrics) Report(o model.Outcome) {
	m.Submissions.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
}

// ObserveInference records one inference call.
func (m *Metrics) ObserveInference(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.InferenceLatency.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveLookup records one seller resolution.
func (m *Metrics) ObserveLookup(result string) {
	m.SellerLookups.WithLabelValues(result).Inc()
}

// ObserveBatch records one dispatched batch.
func (m *Metrics) ObserveBatch(d time.Duration) {
	m.Batches.Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// ObserveFlush records one bulk insert.
func (m *Metrics) ObserveFlush(inserted int, err error) {
	if err != nil {
		m.Flushes.WithLabelValues("error").Inc()
		return
	}
	m.Flushes.WithLabelValues("ok").Inc()
	m.RowsInserted.Add(float64(inserted))
}

// SetQueueDepth records the number of waiting submissions.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}
