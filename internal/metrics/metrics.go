package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the studio's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	imageFallbacks  prometheus.Counter
	backendRequests *prometheus.CounterVec
	exports         *prometheus.CounterVec
	exportDuration  *prometheus.HistogramVec
	exportPages     prometheus.Histogram
	wsConnections   prometheus.Gauge
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer exposes them
// on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		imageFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "studio",
			Name:      "image_fallbacks_total",
			Help:      "Images replaced by the placeholder after a failed fetch.",
		}),
		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Name:      "backend_requests_total",
			Help:      "Requests made to the question-bank backend.",
		}, []string{"endpoint", "status"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Name:      "exports_total",
			Help:      "Export attempts by format and outcome.",
		}, []string{"format", "outcome"}),
		exportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studio",
			Name:      "export_duration_seconds",
			Help:      "Time spent rendering an export.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		exportPages: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studio",
			Name:      "export_pages",
			Help:      "Pages produced per PDF export.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "studio",
			Name:      "ws_connections",
			Help:      "Open notification sockets.",
		}),
	}
}

func (m *Metrics) ImageFallback() {
	if m == nil {
		return
	}
	m.imageFallbacks.Inc()
}

// BackendRequest counts a backend call; status 0 means a transport failure.
func (m *Metrics) BackendRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendRequests.WithLabelValues(endpoint, label).Inc()
}

func (m *Metrics) Export(format string, pages int, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(format, outcome).Inc()
	m.exportDuration.WithLabelValues(format).Observe(took.Seconds())
	if err == nil && pages > 0 {
		m.exportPages.Observe(float64(pages))
	}
}

func (m *Metrics) WSConnected(delta int) {
	if m == nil {
		return
	}
	m.wsConnections.Add(float64(delta))
}
