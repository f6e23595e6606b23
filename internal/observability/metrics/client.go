package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientMetrics counts capture and submission activity of the fitting client.
type ClientMetrics struct {
	registry *prometheus.Registry
	service  string

	captureTotal      *prometheus.CounterVec
	submissionTotal   *prometheus.CounterVec
	uploadBytesTotal  *prometheus.CounterVec
	pollTotal         *prometheus.CounterVec
	normalizeDuration *prometheus.HistogramVec
}

func NewClientMetrics(service string) *ClientMetrics {
	registry := prometheus.NewRegistry()

	captureTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfit",
			Subsystem: "capture",
			Name:      "recordings_total",
			Help:      "Total recordings by capture path and status.",
		},
		[]string{"service", "path", "status"},
	)
	submissionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfit",
			Subsystem: "generation",
			Name:      "submissions_total",
			Help:      "Total generation submissions by media kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	uploadBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfit",
			Subsystem: "generation",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded to presigned targets.",
		},
		[]string{"service"},
	)
	pollTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vfit",
			Subsystem: "generation",
			Name:      "polls_total",
			Help:      "Total status polls by observed status.",
		},
		[]string{"service", "status"},
	)
	normalizeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vfit",
			Subsystem: "media",
			Name:      "normalize_duration_seconds",
			Help:      "Image normalization duration in seconds by status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(captureTotal, submissionTotal, uploadBytesTotal, pollTotal, normalizeDuration)

	return &ClientMetrics{
		registry:          registry,
		service:           service,
		captureTotal:      captureTotal,
		submissionTotal:   submissionTotal,
		uploadBytesTotal:  uploadBytesTotal,
		pollTotal:         pollTotal,
		normalizeDuration: normalizeDuration,
	}
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClientMetrics) RecordCapture(path, status string) {
	m.captureTotal.WithLabelValues(m.service, orUnknown(path), orUnknown(status)).Inc()
}

func (m *ClientMetrics) RecordSubmission(kind, status string) {
	m.submissionTotal.WithLabelValues(m.service, orUnknown(kind), orUnknown(status)).Inc()
}

func (m *ClientMetrics) AddUploadBytes(n int) {
	if n <= 0 {
		return
	}
	m.uploadBytesTotal.WithLabelValues(m.service).Add(float64(n))
}

func (m *ClientMetrics) RecordPoll(status string) {
	m.pollTotal.WithLabelValues(m.service, orUnknown(status)).Inc()
}

func (m *ClientMetrics) ObserveNormalize(d time.Duration, status string) {
	if d < 0 {
		return
	}
	m.normalizeDuration.WithLabelValues(m.service, orUnknown(status)).Observe(d.Seconds())
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
