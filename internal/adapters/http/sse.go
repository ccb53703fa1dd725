package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// sseStream is the producer side of one server-sent-events response.
// Each send flushes, so proxies and the nginx tier in front relay chunks
// as they are produced.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startSSE(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming is not supported by response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseStream{w: w, flusher: flusher}, nil
}

// sendNamed writes one named event with a JSON payload.
func (s *sseStream) sendNamed(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// sendData writes one bare data line; the ask stream uses this shape.
func (s *sseStream) sendData(line string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", line); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// analysisEventPayload renders one stream event for the analyze SSE wire
// format. The event name is the domain kind's wire name.
func analysisEventPayload(event domain.StreamEvent) (string, any) {
	switch event.Kind {
	case domain.EventPredictions:
		return "predictions", map[string]any{"predictions": event.Predictions}
	case domain.EventVision:
		return "vision", event.Vision
	case domain.EventText:
		return "text", map[string]string{"chunk": event.Chunk}
	case domain.EventComplete:
		return "complete", event.Result
	case domain.EventError:
		return "error", errorEnvelopeFor(event.Err)
	default:
		return "unknown", nil
	}
}
