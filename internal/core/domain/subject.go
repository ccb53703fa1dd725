package domain

import "strings"

const guestUsernamePrefix = "guest_"

// Subject is the authenticated user or guest identity that rate limits,
// operation locks, and session ownership are keyed by.
type Subject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Guest    bool   `json:"guest"`
}

func NewSubject(id, username string) Subject {
	return Subject{
		ID:       id,
		Username: username,
		Guest:    strings.HasPrefix(strings.ToLower(username), guestUsernamePrefix),
	}
}

// EndpointClass buckets endpoints sharing one rate-limit budget.
type EndpointClass string

const (
	ClassAnalyze    EndpointClass = "analyze"
	ClassGenerate   EndpointClass = "generate"
	ClassDeepFull   EndpointClass = "deep-full"
	ClassDeepModule EndpointClass = "deep-module"
	ClassAsk        EndpointClass = "ask"
	ClassDefault    EndpointClass = "default"
)
