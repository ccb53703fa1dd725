package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

type sessionBody struct {
	Snapshot domain.SessionSnapshot `json:"snapshot"`
}

type askBody struct {
	Question string `json:"question"`
	ViewerID string `json:"viewer_id,omitempty"`
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	var body sessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "create session", errors.New("invalid json body")))
		return
	}

	view, err := rt.collaborative.Create(r.Context(), subject, body.Snapshot)
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}

	rt.metrics.RecordSessionEvent(serviceName, "created")
	writeJSON(w, http.StatusCreated, view)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	view, err := rt.collaborative.Get(r.Context(), subject, r.PathValue("id"))
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) getSessionFull(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	view, err := rt.collaborative.GetFull(r.Context(), subject, r.PathValue("id"))
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) sessionHeartbeat(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	status, err := rt.collaborative.Heartbeat(r.Context(), subject, r.PathValue("id"), r.URL.Query().Get("viewer_id"))
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) updateSession(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	var body sessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "update session", errors.New("invalid json body")))
		return
	}

	view, err := rt.collaborative.Update(r.Context(), subject, r.PathValue("id"), body.Snapshot)
	if err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	if err := rt.collaborative.Close(r.Context(), subject, r.PathValue("id")); err != nil {
		rt.recordRejection(domain.ClassDefault, err)
		writeError(w, err)
		return
	}
	rt.metrics.RecordSessionEvent(serviceName, "closed")
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) askSession(w http.ResponseWriter, r *http.Request, subject domain.Subject) {
	var body askBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "session ask", errors.New("invalid json body")))
		return
	}

	events, err := rt.collaborative.Ask(r.Context(), subject, r.PathValue("id"), body.ViewerID, body.Question)
	if err != nil {
		rt.recordRejection(domain.ClassAsk, err)
		writeError(w, err)
		return
	}
	rt.metrics.RecordSessionEvent(serviceName, "ask")

	sse, err := startSSE(w)
	if err != nil {
		go drainEvents(events)
		writeError(w, err)
		return
	}

	for event := range events {
		rt.metrics.RecordStreamEvent(serviceName, "ask", event.Kind.String())

		var sendErr error
		switch event.Kind {
		case domain.EventText:
			sendErr = sse.sendData(event.Chunk)
		case domain.EventComplete:
			sendErr = sse.sendData("[DONE]")
		case domain.EventError:
			sendErr = sse.sendData("[ERROR] " + event.Err.Error())
		}
		if sendErr != nil {
			drainEvents(events)
			return
		}
	}
}
