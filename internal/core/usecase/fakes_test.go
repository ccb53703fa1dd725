package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// Port fakes shared across the usecase tests.

type fakeClassifier struct {
	predictions []domain.Prediction
	err         error
	calls       int
}

func (f *fakeClassifier) Predict(_ context.Context, _ []byte) ([]domain.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.predictions, nil
}

type fakeVision struct {
	finding *domain.VisionFinding
	err     error
	calls   int
}

func (f *fakeVision) ResolveArtwork(_ context.Context, _ []byte, _ string) (*domain.VisionFinding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.finding, nil
}

type fakeStreamer struct {
	chunks     []string
	err        error
	calls      int
	lastSystem string
	lastUser   string
	blockOnCtx bool
}

func (f *fakeStreamer) GenerateStream(ctx context.Context, system, user string, onChunk func(string) error) error {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	for i, chunk := range f.chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
		if f.blockOnCtx && i == 0 {
			<-ctx.Done()
			return ctx.Err()
		}
	}
	return f.err
}

type fakeTexts struct {
	responses []string
	errAt     int
	err       error
	users     []string
	systems   []string
}

func (f *fakeTexts) Generate(_ context.Context, system, user string) (string, error) {
	f.users = append(f.users, user)
	f.systems = append(f.systems, system)
	n := len(f.users)
	if f.errAt > 0 && n >= f.errAt {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("generation failed")
	}
	if len(f.responses) == 0 {
		return "generated text", nil
	}
	if n-1 < len(f.responses) {
		return f.responses[n-1], nil
	}
	return f.responses[len(f.responses)-1], nil
}

type fakeExtractor struct {
	features domain.VisualFeatures
	err      error
}

func (f *fakeExtractor) Extract(_ []byte) (domain.VisualFeatures, error) {
	if f.err != nil {
		return domain.VisualFeatures{}, f.err
	}
	return f.features, nil
}

type fakeLimiter struct {
	denial error
	calls  []domain.EndpointClass
}

func (f *fakeLimiter) Check(_ string, class domain.EndpointClass) error {
	f.calls = append(f.calls, class)
	return f.denial
}

type fakeGate struct {
	busy     bool
	acquired int
	released int
}

func (f *fakeGate) TryAcquire(string) bool {
	if f.busy {
		return false
	}
	f.acquired++
	return true
}

func (f *fakeGate) Release(string) {
	f.released++
}

type fakeCache struct {
	entries map[string]domain.LatestAnalysis
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]domain.LatestAnalysis{}}
}

func (f *fakeCache) Put(subjectID string, analysis domain.LatestAnalysis) {
	f.entries[subjectID] = analysis
}

func (f *fakeCache) Get(subjectID string) (*domain.LatestAnalysis, bool) {
	analysis, ok := f.entries[subjectID]
	if !ok {
		return nil, false
	}
	return &analysis, true
}

type fakeQueue struct {
	records []domain.ArchiveRecord
	err     error
}

func (f *fakeQueue) PublishArchiveRecord(_ context.Context, record domain.ArchiveRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeQueue) SubscribeArchiveRecords(context.Context, func(context.Context, domain.ArchiveRecord) error) error {
	return nil
}

type fakeImages struct {
	available    bool
	urls         []string
	seed         int64
	err          error
	genCalls     int
	lastPrompt   string
	lastNegative string
	lastCount    int
}

func (f *fakeImages) Available(context.Context) bool {
	return f.available
}

func (f *fakeImages) GenerateImages(_ context.Context, prompt, negative string, count int) ([]string, int64, error) {
	f.genCalls++
	f.lastPrompt = prompt
	f.lastNegative = negative
	f.lastCount = count
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.urls, f.seed, nil
}

type fakeArchiveRepo struct {
	records []domain.ArchiveRecord
	listErr error
	saved   []domain.ArchiveRecord
	saveErr error
}

func (f *fakeArchiveRepo) Save(_ context.Context, record domain.ArchiveRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, record)
	return nil
}

func (f *fakeArchiveRepo) ListBySubject(_ context.Context, _ string, _ int) ([]domain.ArchiveRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSubject() domain.Subject {
	return domain.NewSubject("user-1", "alice")
}

func guestSubject() domain.Subject {
	return domain.NewSubject("guest-7", "guest_7f3a")
}

func testUpload() domain.ImageUpload {
	return domain.ImageUpload{
		Filename:    "artwork.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg-bytes"),
	}
}
