package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
	"github.com/kirillkom/art-insight-service/internal/core/stream"
	"github.com/kirillkom/art-insight-service/internal/observability/logging"
)

// AnalyzeConfig tunes the quick-analysis pipeline.
type AnalyzeConfig struct {
	ConfidenceThreshold float64
	VisionEnabled       bool
	StreamBufferSize    int
	StreamSendTimeout   time.Duration
}

// AnalyzeUseCase runs the quick-analysis pipeline: classify, optionally
// resolve identity with the vision model, then stream the narrative.
// Streaming and non-streaming requests drive the same state machine, so
// the narrative text is identical either way.
type AnalyzeUseCase struct {
	classifier ports.Classifier
	vision     ports.VisionResolver
	narrator   ports.TextStreamer
	features   ports.FeatureExtractor
	limiter    ports.RateLimiter
	gate       ports.OperationGate
	cache      ports.AnalysisCache
	archive    ports.ArchiveQueue
	logger     *slog.Logger
	cfg        AnalyzeConfig
	now        func() time.Time
}

func NewAnalyzeUseCase(
	classifier ports.Classifier,
	vision ports.VisionResolver,
	narrator ports.TextStreamer,
	features ports.FeatureExtractor,
	limiter ports.RateLimiter,
	gate ports.OperationGate,
	cache ports.AnalysisCache,
	archive ports.ArchiveQueue,
	logger *slog.Logger,
	cfg AnalyzeConfig,
) *AnalyzeUseCase {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = 0.60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeUseCase{
		classifier: classifier,
		vision:     vision,
		narrator:   narrator,
		features:   features,
		limiter:    limiter,
		gate:       gate,
		cache:      cache,
		archive:    archive,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// analyzePhase is the explicit pipeline state. The driver loops over it;
// there is no other control flow between stages.
type analyzePhase int

const (
	phasePredicting analyzePhase = iota
	phaseVisionCheck
	phaseStreamingKnown
	phaseStreamingText
	phaseDone
	phaseError
)

// analysisRun is one request's pipeline state. It lives exactly as long
// as the request.
type analysisRun struct {
	id          string
	subject     domain.Subject
	upload      domain.ImageUpload
	phase       analyzePhase
	predictions []domain.Prediction
	vision      *domain.VisionFinding
	narrative   strings.Builder
	interrupted bool
	err         error
	startedAt   time.Time
}

func (r *analysisRun) fail(err error) {
	r.err = err
	r.phase = phaseError
}

func (r *analysisRun) interrupt(operation string, err error) {
	r.interrupted = true
	r.fail(domain.WrapError(domain.ErrStreamInterrupted, operation, err))
}

func (r *analysisRun) result(now time.Time) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		RunID:       r.id,
		Predictions: r.predictions,
		Vision:      r.vision,
		Narrative:   strings.TrimSpace(r.narrative.String()),
		Interrupted: r.interrupted,
		CreatedAt:   now,
	}
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, subject domain.Subject, upload domain.ImageUpload) (*domain.AnalysisResult, error) {
	release, err := uc.admit(subject, upload)
	if err != nil {
		return nil, err
	}
	defer release()

	run := uc.newRun(subject, upload)
	uc.drive(ctx, run, func(domain.StreamEvent) error { return nil })
	if run.err != nil {
		return nil, run.err
	}
	return uc.finish(ctx, run), nil
}

func (uc *AnalyzeUseCase) AnalyzeStream(ctx context.Context, subject domain.Subject, upload domain.ImageUpload) (<-chan domain.StreamEvent, error) {
	release, err := uc.admit(subject, upload)
	if err != nil {
		return nil, err
	}

	emitter := stream.NewEmitter(uc.cfg.StreamBufferSize, uc.cfg.StreamSendTimeout)
	run := uc.newRun(subject, upload)

	go func() {
		// Deferred LIFO: the gate releases before the channel closes, so a
		// closed stream means the subject may start a new heavy operation.
		defer emitter.Close()
		defer release()

		uc.drive(ctx, run, func(event domain.StreamEvent) error {
			return emitter.Emit(ctx, event)
		})

		if run.err != nil {
			if run.interrupted && len(run.predictions) > 0 {
				// Identity is known: cache the partial result so a deep
				// analysis stays possible after the disconnect.
				_ = uc.finish(ctx, run)
			}
			_ = emitter.Emit(ctx, domain.ErrorEvent(run.err))
			return
		}

		result := uc.finish(ctx, run)
		_ = emitter.Emit(ctx, domain.CompleteEvent(*result))
	}()

	return emitter.Events(), nil
}

// admit acquires the per-subject gate before charging the rate budget:
// a busy subject is turned away without spending window quota. The
// returned release is safe on every exit path.
func (uc *AnalyzeUseCase) admit(subject domain.Subject, upload domain.ImageUpload) (func(), error) {
	if len(upload.Data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze", errors.New("empty image upload"))
	}
	if !uc.gate.TryAcquire(subject.ID) {
		return nil, fmt.Errorf("analyze admission: %w", domain.ErrBusy)
	}
	if err := uc.limiter.Check(subject.ID, domain.ClassAnalyze); err != nil {
		uc.gate.Release(subject.ID)
		return nil, err
	}
	return func() { uc.gate.Release(subject.ID) }, nil
}

func (uc *AnalyzeUseCase) newRun(subject domain.Subject, upload domain.ImageUpload) *analysisRun {
	return &analysisRun{
		id:        uuid.NewString(),
		subject:   subject,
		upload:    upload,
		phase:     phasePredicting,
		startedAt: uc.now(),
	}
}

func (uc *AnalyzeUseCase) drive(ctx context.Context, run *analysisRun, emit func(domain.StreamEvent) error) {
	for {
		switch run.phase {
		case phasePredicting:
			uc.predict(ctx, run)
		case phaseVisionCheck:
			uc.visionCheck(ctx, run, emit)
		case phaseStreamingKnown:
			uc.announcePredictions(run, emit)
		case phaseStreamingText:
			uc.streamNarrative(ctx, run, emit)
		case phaseDone, phaseError:
			return
		}
	}
}

func (uc *AnalyzeUseCase) predict(ctx context.Context, run *analysisRun) {
	predictions, err := uc.classifier.Predict(ctx, run.upload.Data)
	if err != nil {
		run.fail(domain.WrapError(domain.ErrUpstreamFailure, "classifier predict", err))
		return
	}
	if len(predictions) == 0 {
		run.fail(domain.WrapError(domain.ErrUpstreamFailure, "classifier predict", errors.New("no predictions returned")))
		return
	}
	run.predictions = predictions
	if uc.needsVisionCheck(predictions[0]) {
		run.phase = phaseVisionCheck
		return
	}
	run.phase = phaseStreamingKnown
}

// needsVisionCheck routes uncertain attributions through the vision
// model: low top probability or an "unknown" class.
func (uc *AnalyzeUseCase) needsVisionCheck(top domain.Prediction) bool {
	if !uc.cfg.VisionEnabled || uc.vision == nil {
		return false
	}
	return top.Probability < uc.cfg.ConfidenceThreshold || strings.Contains(top.Slug, "unknown")
}

func (uc *AnalyzeUseCase) visionCheck(ctx context.Context, run *analysisRun, emit func(domain.StreamEvent) error) {
	finding, err := uc.vision.ResolveArtwork(ctx, run.upload.Data, run.upload.ContentType)
	if err != nil {
		// Vision is a best-effort refinement; classifier output stands.
		logging.FromContext(ctx, uc.logger).Warn("vision_check_failed", "run_id", run.id, "error", err.Error())
		run.phase = phaseStreamingKnown
		return
	}
	if finding == nil || !finding.Overrides() {
		if finding != nil {
			run.vision = finding
		}
		run.phase = phaseStreamingKnown
		return
	}

	run.vision = finding
	run.predictions = append([]domain.Prediction{finding.AsPrediction()}, run.predictions...)
	if err := emit(domain.VisionEvent(*finding)); err != nil {
		run.interrupt("announce vision finding", err)
		return
	}
	run.phase = phaseStreamingText
}

func (uc *AnalyzeUseCase) announcePredictions(run *analysisRun, emit func(domain.StreamEvent) error) {
	if err := emit(domain.PredictionsEvent(run.predictions)); err != nil {
		run.interrupt("announce predictions", err)
		return
	}
	run.phase = phaseStreamingText
}

func (uc *AnalyzeUseCase) streamNarrative(ctx context.Context, run *analysisRun, emit func(domain.StreamEvent) error) {
	scanner := stream.NewReasoningScanner()
	forward := func(text string) error {
		if text == "" {
			return nil
		}
		run.narrative.WriteString(text)
		return emit(domain.TextEvent(text))
	}

	streamErr := uc.narrator.GenerateStream(
		ctx,
		narrativeSystemPrompt,
		narrativeUserPrompt(run.predictions, run.vision),
		func(chunk string) error {
			return forward(scanner.Feed(chunk))
		},
	)
	if streamErr != nil {
		if isInterruption(ctx, streamErr) {
			run.interrupt("narrative stream", streamErr)
			return
		}
		run.fail(domain.WrapError(domain.ErrUpstreamFailure, "narrative stream", streamErr))
		return
	}
	if err := forward(scanner.Flush()); err != nil {
		run.interrupt("narrative stream", err)
		return
	}
	run.phase = phaseDone
}

// isInterruption separates the consumer going away from the upstream
// provider failing.
func isInterruption(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, stream.ErrSlowConsumer) || errors.Is(err, context.Canceled)
}

// finish builds the result, records it to the per-subject cache, and
// publishes an archive record for non-guest, non-interrupted runs.
func (uc *AnalyzeUseCase) finish(ctx context.Context, run *analysisRun) *domain.AnalysisResult {
	result := run.result(uc.now())
	features := uc.extractFeatures(run)
	uc.cache.Put(run.subject.ID, domain.LatestAnalysis{
		Result:     *result,
		Features:   features,
		AnalyzedAt: result.CreatedAt,
	})

	if !run.subject.Guest && !result.Interrupted {
		uc.publishArchive(ctx, run, result)
	}

	event := "analysis_completed"
	if result.Interrupted {
		event = "analysis_interrupted"
	}
	logging.FromContext(ctx, uc.logger).Info(event,
		"run_id", run.id,
		"subject_id", run.subject.ID,
		"top_artist", result.TopArtist(),
		"vision_used", result.Vision != nil,
		"duration_ms", uc.now().Sub(run.startedAt).Milliseconds(),
	)
	return result
}

func (uc *AnalyzeUseCase) extractFeatures(run *analysisRun) domain.VisualFeatures {
	if uc.features == nil {
		return domain.VisualFeatures{}
	}
	features, err := uc.features.Extract(run.upload.Data)
	if err != nil {
		uc.logger.Debug("feature_extraction_skipped", "run_id", run.id, "error", err.Error())
		return domain.VisualFeatures{}
	}
	return features
}

func (uc *AnalyzeUseCase) publishArchive(ctx context.Context, run *analysisRun, result *domain.AnalysisResult) {
	if uc.archive == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		uc.logger.Warn("archive_payload_marshal_failed", "run_id", run.id, "error", err.Error())
		return
	}
	record := domain.ArchiveRecord{
		ID:        uuid.NewString(),
		SubjectID: run.subject.ID,
		Kind:      domain.ArchiveAnalysis,
		Title:     archiveTitle(result.TopArtist(), run.upload.Filename),
		Payload:   payload,
		CreatedAt: result.CreatedAt,
	}
	if err := uc.archive.PublishArchiveRecord(ctx, record); err != nil {
		logging.FromContext(ctx, uc.logger).Warn("archive_publish_failed", "run_id", run.id, "error", err.Error())
	}
}

func archiveTitle(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}
