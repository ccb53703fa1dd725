package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	analysisRunsTotal    *prometheus.CounterVec
	analysisDuration     *prometheus.HistogramVec
	visionChecksTotal    *prometheus.CounterVec
	streamEventsTotal    *prometheus.CounterVec
	admissionRejectTotal *prometheus.CounterVec
	deepModulesTotal     *prometheus.CounterVec
	deepMarkerCount      *prometheus.HistogramVec
	generationsTotal     *prometheus.CounterVec
	generatedImagesTotal *prometheus.CounterVec
	sessionEventsTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ais",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ais",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	analysisRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total analysis runs by transport mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ais",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	visionChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "analysis",
			Name:      "vision_checks_total",
			Help:      "Total vision fallback consultations by result.",
		},
		[]string{"service", "result"},
	)
	streamEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total SSE events written by event kind.",
		},
		[]string{"service", "endpoint", "event"},
	)
	admissionRejectTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "admission",
			Name:      "rejections_total",
			Help:      "Total requests rejected at admission by reason.",
		},
		[]string{"service", "class", "reason"},
	)
	deepModulesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "deep",
			Name:      "modules_total",
			Help:      "Total deep analysis modules served by status.",
		},
		[]string{"service", "module", "status"},
	)
	deepMarkerCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ais",
			Subsystem: "deep",
			Name:      "summary_markers",
			Help:      "Distribution of inline markers per deep analysis summary.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	generationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Total image generation runs by backend.",
		},
		[]string{"service", "backend"},
	)
	generatedImagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "generation",
			Name:      "images_total",
			Help:      "Total images produced by backend.",
		},
		[]string{"service", "backend"},
	)
	sessionEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ais",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Total collaborative session lifecycle events.",
		},
		[]string{"service", "event"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		analysisRunsTotal,
		analysisDuration,
		visionChecksTotal,
		streamEventsTotal,
		admissionRejectTotal,
		deepModulesTotal,
		deepMarkerCount,
		generationsTotal,
		generatedImagesTotal,
		sessionEventsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		analysisRunsTotal:    analysisRunsTotal,
		analysisDuration:     analysisDuration,
		visionChecksTotal:    visionChecksTotal,
		streamEventsTotal:    streamEventsTotal,
		admissionRejectTotal: admissionRejectTotal,
		deepModulesTotal:     deepModulesTotal,
		deepMarkerCount:      deepMarkerCount,
		generationsTotal:     generationsTotal,
		generatedImagesTotal: generatedImagesTotal,
		sessionEventsTotal:   sessionEventsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so metric cardinality stays
// bounded by the route table.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/collaborative/"):
		rest := strings.TrimPrefix(path, "/v1/collaborative/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/v1/collaborative/{id}" + rest[idx:]
		}
		return "/v1/collaborative/{id}"
	case strings.HasPrefix(path, "/v1/deep-analysis/module/"):
		return "/v1/deep-analysis/module/{name}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAnalysisRun(service, mode, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.analysisRunsTotal.WithLabelValues(service, mode, outcome).Inc()
	m.analysisDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordVisionCheck(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.visionChecksTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordStreamEvent(service, endpoint, event string) {
	m.streamEventsTotal.WithLabelValues(service, endpoint, event).Inc()
}

func (m *HTTPServerMetrics) RecordAdmissionRejected(service, class, reason string) {
	if class == "" {
		class = "unknown"
	}
	m.admissionRejectTotal.WithLabelValues(service, class, reason).Inc()
}

func (m *HTTPServerMetrics) RecordDeepModule(service, module, status string) {
	if module == "" {
		module = "unknown"
	}
	m.deepModulesTotal.WithLabelValues(service, module, status).Inc()
}

func (m *HTTPServerMetrics) RecordDeepSummary(service string, markerCount int) {
	m.deepMarkerCount.WithLabelValues(service).Observe(float64(markerCount))
}

func (m *HTTPServerMetrics) RecordGeneration(service, backend string, images int) {
	if backend == "" {
		backend = "unknown"
	}
	m.generationsTotal.WithLabelValues(service, backend).Inc()
	if images > 0 {
		m.generatedImagesTotal.WithLabelValues(service, backend).Add(float64(images))
	}
}

func (m *HTTPServerMetrics) RecordSessionEvent(service, event string) {
	m.sessionEventsTotal.WithLabelValues(service, event).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
