package httpadapter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrBusy):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSessionExpired):
		return http.StatusGone
	case domain.IsKind(err, domain.ErrUpstreamFailure), domain.IsKind(err, domain.ErrStreamInterrupted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorEnvelope is the uniform error body. RetryAfterSeconds appears
// only on rate-limit denials and mirrors the Retry-After header.
type errorEnvelope struct {
	Error             string `json:"error"`
	Kind              string `json:"kind"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func errorEnvelopeFor(err error) errorEnvelope {
	envelope := errorEnvelope{
		Error: err.Error(),
		Kind:  domain.ErrorKind(err),
	}
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		envelope.RetryAfterSeconds = rateErr.RetryAfterSeconds()
	}
	return envelope
}

func writeError(w http.ResponseWriter, err error) {
	envelope := errorEnvelopeFor(err)
	if envelope.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(envelope.RetryAfterSeconds))
	}
	writeJSON(w, mapErrorToHTTPStatus(err), envelope)
}
