package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	archiveTotal    *prometheus.CounterVec
	archiveDuration *prometheus.HistogramVec
	archiveInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	archiveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "worker",
			Name:      "archive_records_total",
			Help:      "Total consumed archive records by status.",
		},
		[]string{"service", "status"},
	)
	archiveDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ais",
			Subsystem: "worker",
			Name:      "archive_duration_seconds",
			Help:      "Archive record persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	archiveInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ais",
			Subsystem: "worker",
			Name:      "archive_in_flight",
			Help:      "Number of archive records being persisted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ais",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between record publication and persistence start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(archiveTotal, archiveDuration, archiveInFlight, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		archiveTotal:    archiveTotal,
		archiveDuration: archiveDuration,
		archiveInFlight: archiveInFlight,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRecord() {
	m.archiveInFlight.Inc()
}

func (m *WorkerMetrics) FinishRecord(service string, duration time.Duration, err error) {
	m.archiveInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.archiveTotal.WithLabelValues(service, status).Inc()
	m.archiveDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
