package domain

import "time"

// SessionSnapshot is the shared analysis payload a collaborative session
// shows its viewers. It is owner-mutable and schemaless at this layer.
type SessionSnapshot map[string]any

const snapshotDeepAnalysisKey = "deep_analysis"

// HasDeepAnalysis reports whether the snapshot carries deep results.
func (s SessionSnapshot) HasDeepAnalysis() bool {
	v, ok := s[snapshotDeepAnalysisKey]
	return ok && v != nil
}

// Merge applies patch keys over the snapshot and returns the result.
// A nil value removes the key.
func (s SessionSnapshot) Merge(patch SessionSnapshot) SessionSnapshot {
	out := make(SessionSnapshot, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// SessionView is the redacted public projection of a session: no owner
// identity, no viewer bookkeeping.
type SessionView struct {
	ID               string          `json:"id"`
	Snapshot         SessionSnapshot `json:"snapshot"`
	RemainingSeconds int             `json:"remaining_seconds"`
	ActiveViewers    int             `json:"active_viewers"`
	HasDeepAnalysis  bool            `json:"has_deep_analysis"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SessionViewer is one viewer's liveness entry in the owner view.
type SessionViewer struct {
	ViewerID      string    `json:"viewer_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// OwnerSessionView extends the public view with owner-only bookkeeping.
type OwnerSessionView struct {
	SessionView
	OwnerID string          `json:"owner_id"`
	Viewers []SessionViewer `json:"viewers"`
}

// HeartbeatStatus is the reply to a viewer heartbeat.
type HeartbeatStatus struct {
	ActiveViewers    int `json:"active_viewers"`
	RemainingSeconds int `json:"remaining_seconds"`
}
