package domain

import (
	"encoding/json"
	"time"
)

// ArchiveKind classifies an archived record.
type ArchiveKind string

const (
	ArchiveAnalysis     ArchiveKind = "analysis"
	ArchiveDeepAnalysis ArchiveKind = "deep_analysis"
	ArchiveGeneration   ArchiveKind = "generation"
)

// ArchiveRecord is the durable trace of a completed operation. The API
// publishes it to the queue; the worker persists it. Guests never produce
// archive records.
type ArchiveRecord struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subject_id"`
	Kind      ArchiveKind     `json:"kind"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
