package httpadapter

import (
	"net/http"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func (rt *Router) analyze(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	upload, err := readImageUpload(r, int64(rt.cfg.UploadMaxBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	result, err := rt.analyzer.Analyze(r.Context(), subject, upload)
	if err != nil {
		if !rt.recordRejection(domain.ClassAnalyze, err) {
			rt.metrics.RecordAnalysisRun(serviceName, "sync", "failed", time.Since(start))
		}
		writeError(w, err)
		return
	}

	rt.metrics.RecordAnalysisRun(serviceName, "sync", "completed", time.Since(start))
	if result.Vision != nil {
		rt.metrics.RecordVisionCheck(serviceName, visionCheckResult(result))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) analyzeStream(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	upload, err := readImageUpload(r, int64(rt.cfg.UploadMaxBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	events, err := rt.analyzer.AnalyzeStream(r.Context(), subject, upload)
	if err != nil {
		rt.recordRejection(domain.ClassAnalyze, err)
		writeError(w, err)
		return
	}

	sse, err := startSSE(w)
	if err != nil {
		go drainEvents(events)
		writeError(w, err)
		return
	}

	outcome := "interrupted"
	for event := range events {
		name, payload := analysisEventPayload(event)
		rt.metrics.RecordStreamEvent(serviceName, "analyze", name)
		if sendErr := sse.sendNamed(name, payload); sendErr != nil {
			// Client is gone. Drain so the pipeline finishes and
			// releases the gate.
			drainEvents(events)
			break
		}
		switch event.Kind {
		case domain.EventComplete:
			outcome = "completed"
			if event.Result != nil && event.Result.Vision != nil {
				rt.metrics.RecordVisionCheck(serviceName, visionCheckResult(event.Result))
			}
		case domain.EventError:
			if domain.IsKind(event.Err, domain.ErrStreamInterrupted) {
				outcome = "interrupted"
			} else {
				outcome = "failed"
			}
		}
	}
	rt.metrics.RecordAnalysisRun(serviceName, "stream", outcome, time.Since(start))
}

func drainEvents(events <-chan domain.StreamEvent) {
	for range events {
	}
}

// visionCheckResult reports whether the vision finding replaced the top
// attribution or was only recorded.
func visionCheckResult(result *domain.AnalysisResult) string {
	if len(result.Predictions) > 0 && result.Predictions[0].Index < 0 {
		return "override"
	}
	return "consulted"
}
