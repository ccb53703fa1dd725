package ports

import (
	"context"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// ArtworkAnalyzer is the inbound contract for single-image analysis.
//
// AnalyzeStream performs admission (concurrency gate, then rate limit)
// synchronously and returns an error before any event is produced; after
// that, pipeline progress arrives on the returned channel, which carries
// exactly one identity event, ordered text chunks, and exactly one
// terminal event before closing.
type ArtworkAnalyzer interface {
	Analyze(ctx context.Context, subject domain.Subject, upload domain.ImageUpload) (*domain.AnalysisResult, error)
	AnalyzeStream(ctx context.Context, subject domain.Subject, upload domain.ImageUpload) (<-chan domain.StreamEvent, error)
}

// DeepAnalyzer runs the ordered multi-module interpretation pipeline.
type DeepAnalyzer interface {
	FullAnalysis(ctx context.Context, subject domain.Subject, identity domain.ArtworkIdentity) (*domain.DeepAnalysis, error)
	SingleModule(ctx context.Context, subject domain.Subject, identity domain.ArtworkIdentity, module domain.DeepModule) (*domain.ModuleResult, error)
}

// ArtworkGenerator produces images in a detected artistic style.
type ArtworkGenerator interface {
	Generate(ctx context.Context, subject domain.Subject, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

// CollaborativeService is the inbound contract for shareable viewing sessions.
//
// Ask streams the answer as text events terminated by a complete or error
// event; admission errors are returned synchronously.
type CollaborativeService interface {
	Create(ctx context.Context, subject domain.Subject, snapshot domain.SessionSnapshot) (*domain.OwnerSessionView, error)
	Get(ctx context.Context, caller domain.Subject, id string) (*domain.SessionView, error)
	GetFull(ctx context.Context, caller domain.Subject, id string) (*domain.OwnerSessionView, error)
	Heartbeat(ctx context.Context, caller domain.Subject, id, viewerID string) (*domain.HeartbeatStatus, error)
	Update(ctx context.Context, caller domain.Subject, id string, patch domain.SessionSnapshot) (*domain.OwnerSessionView, error)
	Close(ctx context.Context, caller domain.Subject, id string) error
	Ask(ctx context.Context, caller domain.Subject, id, viewerID, question string) (<-chan domain.StreamEvent, error)
}

// HistoryReader lists a subject's archived results.
type HistoryReader interface {
	Recent(ctx context.Context, subject domain.Subject, limit int) ([]domain.ArchiveRecord, error)
}

// RecordArchiver is the inbound contract for asynchronous archive persistence.
type RecordArchiver interface {
	Archive(ctx context.Context, record domain.ArchiveRecord) error
}
