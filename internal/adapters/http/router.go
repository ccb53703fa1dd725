package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/kirillkom/art-insight-service/internal/config"
	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
	"github.com/kirillkom/art-insight-service/internal/observability/metrics"
)

const (
	serviceName = "api"

	// How long an over-capacity request may wait for a slot before the
	// backpressure gate sheds it.
	backpressureMaxWait = 500 * time.Millisecond
)

type Router struct {
	analyzer      ports.ArtworkAnalyzer
	deep          ports.DeepAnalyzer
	generator     ports.ArtworkGenerator
	collaborative ports.CollaborativeService
	history       ports.HistoryReader

	auth    *authenticator
	metrics *metrics.HTTPServerMetrics
	cfg     config.Config
}

func NewRouter(
	cfg config.Config,
	analyzer ports.ArtworkAnalyzer,
	deep ports.DeepAnalyzer,
	generator ports.ArtworkGenerator,
	collaborative ports.CollaborativeService,
	history ports.HistoryReader,
	m *metrics.HTTPServerMetrics,
) *Router {
	if m == nil {
		m = metrics.NewHTTPServerMetrics(serviceName)
	}
	return &Router{
		analyzer:      analyzer,
		deep:          deep,
		generator:     generator,
		collaborative: collaborative,
		history:       history,
		auth:          newAuthenticator(cfg.JWTSecret),
		metrics:       m,
		cfg:           cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /v1/analyze", rt.auth.require(rt.analyze))
	mux.HandleFunc("POST /v1/analyze/stream", rt.auth.require(rt.analyzeStream))
	mux.HandleFunc("POST /v1/generate", rt.auth.require(rt.generate))

	mux.HandleFunc("GET /v1/deep-analysis/full", rt.auth.require(rt.deepFull))
	mux.HandleFunc("GET /v1/deep-analysis/module/{name}", rt.auth.require(rt.deepModule))

	mux.HandleFunc("POST /v1/collaborative", rt.auth.require(rt.createSession))
	mux.HandleFunc("GET /v1/collaborative/{id}", rt.auth.public(rt.getSession))
	mux.HandleFunc("GET /v1/collaborative/{id}/full", rt.auth.require(rt.getSessionFull))
	mux.HandleFunc("POST /v1/collaborative/{id}/heartbeat", rt.auth.public(rt.sessionHeartbeat))
	mux.HandleFunc("PATCH /v1/collaborative/{id}", rt.auth.require(rt.updateSession))
	mux.HandleFunc("DELETE /v1/collaborative/{id}", rt.auth.require(rt.closeSession))
	mux.HandleFunc("POST /v1/collaborative/{id}/ask/stream", rt.auth.public(rt.askSession))

	mux.HandleFunc("GET /v1/history", rt.auth.require(rt.getHistory))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, backpressureMaxWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.corsMiddleware(handler)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	origins := strings.Split(rt.cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         300,
	})
	return c.Handler(next)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// admissionReason classifies errors the admission layer produces; other
// errors return "".
func admissionReason(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrRateLimited):
		return "rate_limited"
	case domain.IsKind(err, domain.ErrBusy):
		return "busy"
	default:
		return ""
	}
}

func (rt *Router) recordRejection(class domain.EndpointClass, err error) bool {
	reason := admissionReason(err)
	if reason == "" {
		return false
	}
	rt.metrics.RecordAdmissionRejected(serviceName, string(class), reason)
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
