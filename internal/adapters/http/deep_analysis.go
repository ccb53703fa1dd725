package httpadapter

import (
	"net/http"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func identityFromQuery(r *http.Request) domain.ArtworkIdentity {
	return domain.ArtworkIdentity{
		Artist: r.URL.Query().Get("artist"),
		Title:  r.URL.Query().Get("title"),
	}
}

func (rt *Router) deepFull(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	analysis, err := rt.deep.FullAnalysis(r.Context(), subject, identityFromQuery(r))
	if err != nil {
		rt.recordRejection(domain.ClassDeepFull, err)
		writeError(w, err)
		return
	}

	for _, module := range analysis.Modules {
		rt.metrics.RecordDeepModule(serviceName, string(module.Module), "success")
	}
	rt.metrics.RecordDeepSummary(serviceName, analysis.Summary.MarkerCount)
	writeJSON(w, http.StatusOK, analysis)
}

func (rt *Router) deepModule(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	module := r.PathValue("name")

	result, err := rt.deep.SingleModule(r.Context(), subject, identityFromQuery(r), domain.DeepModule(module))
	if err != nil {
		if !rt.recordRejection(domain.ClassDeepModule, err) && domain.IsKind(err, domain.ErrUpstreamFailure) {
			rt.metrics.RecordDeepModule(serviceName, module, "error")
		}
		writeError(w, err)
		return
	}

	rt.metrics.RecordDeepModule(serviceName, module, "success")
	writeJSON(w, http.StatusOK, result)
}
