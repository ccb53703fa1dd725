package ports

import (
	"context"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// Classifier submits an image to the trained attribution model.
type Classifier interface {
	Predict(ctx context.Context, image []byte) ([]domain.Prediction, error)
}

// VisionResolver identifies an artwork the classifier could not attribute
// confidently, using a multimodal model.
type VisionResolver interface {
	ResolveArtwork(ctx context.Context, image []byte, mimeType string) (*domain.VisionFinding, error)
}

// TextGenerator produces narrative text from prompts.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TextStreamer produces narrative text incrementally. The callback is
// invoked once per upstream chunk, in order; returning an error stops
// the stream.
type TextStreamer interface {
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onChunk func(chunk string) error) error
}

// ImageGenerator drives the diffusion backend.
type ImageGenerator interface {
	Available(ctx context.Context) bool
	GenerateImages(ctx context.Context, prompt, negativePrompt string, count int) (urls []string, seed int64, err error)
}

// RateLimiter enforces per-(subject, endpoint class) request budgets.
// A denial is returned as a *domain.RateLimitError and never consumes
// window budget.
type RateLimiter interface {
	Check(subjectID string, class domain.EndpointClass) error
}

// OperationGate serializes heavy operations per subject.
type OperationGate interface {
	TryAcquire(subjectID string) bool
	Release(subjectID string)
}

// SessionManager owns collaborative session state and its invariants.
type SessionManager interface {
	Create(owner string, snapshot domain.SessionSnapshot) (*domain.OwnerSessionView, error)
	Get(id string) (*domain.SessionView, error)
	GetFull(id, caller string) (*domain.OwnerSessionView, error)
	Heartbeat(id, viewerID string) (*domain.HeartbeatStatus, error)
	Update(id, caller string, patch domain.SessionSnapshot) (*domain.OwnerSessionView, error)
	Close(id, caller string) error
}

// AnalysisCache keeps the most recent completed analysis per subject.
type AnalysisCache interface {
	Put(subjectID string, analysis domain.LatestAnalysis)
	Get(subjectID string) (*domain.LatestAnalysis, bool)
}

// FeatureExtractor computes non-LLM visual features from image bytes.
type FeatureExtractor interface {
	Extract(image []byte) (domain.VisualFeatures, error)
}

// ArchiveQueue publishes/consumes archive records.
type ArchiveQueue interface {
	PublishArchiveRecord(ctx context.Context, record domain.ArchiveRecord) error
	SubscribeArchiveRecords(ctx context.Context, handler func(context.Context, domain.ArchiveRecord) error) error
}

// ArchiveRepository persists archive records and serves history reads.
type ArchiveRepository interface {
	Save(ctx context.Context, record domain.ArchiveRecord) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.ArchiveRecord, error)
}
