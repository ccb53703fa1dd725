package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

func (rt *Router) getHistory(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := rt.history.Recent(r.Context(), subject, limit)
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
