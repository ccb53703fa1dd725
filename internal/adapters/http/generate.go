package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func (rt *Router) generate(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "generate", errors.New("invalid json body")))
		return
	}

	result, err := rt.generator.Generate(r.Context(), subject, req)
	if err != nil {
		rt.recordRejection(domain.ClassGenerate, err)
		writeError(w, err)
		return
	}

	rt.metrics.RecordGeneration(serviceName, string(result.Backend), len(result.Images))
	writeJSON(w, http.StatusOK, result)
}
