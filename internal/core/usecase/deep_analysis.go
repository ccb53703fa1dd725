package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/markers"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
	"github.com/kirillkom/art-insight-service/internal/core/stream"
	"github.com/kirillkom/art-insight-service/internal/observability/logging"
)

// DeepAnalysisUseCase runs the ordered interpretation pipeline over the
// subject's most recent analysis. Modules execute strictly in
// domain.DeepModuleOrder; a module failure aborts the run and nothing
// partial is served.
type DeepAnalysisUseCase struct {
	texts   ports.TextGenerator
	cache   ports.AnalysisCache
	limiter ports.RateLimiter
	gate    ports.OperationGate
	archive ports.ArchiveQueue
	markers *markers.Parser
	logger  *slog.Logger
	now     func() time.Time
}

func NewDeepAnalysisUseCase(
	texts ports.TextGenerator,
	cache ports.AnalysisCache,
	limiter ports.RateLimiter,
	gate ports.OperationGate,
	archive ports.ArchiveQueue,
	parser *markers.Parser,
	logger *slog.Logger,
) *DeepAnalysisUseCase {
	if parser == nil {
		parser = markers.NewParser()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepAnalysisUseCase{
		texts:   texts,
		cache:   cache,
		limiter: limiter,
		gate:    gate,
		archive: archive,
		markers: parser,
		logger:  logger,
		now:     time.Now,
	}
}

func (uc *DeepAnalysisUseCase) FullAnalysis(ctx context.Context, subject domain.Subject, identity domain.ArtworkIdentity) (*domain.DeepAnalysis, error) {
	if !uc.gate.TryAcquire(subject.ID) {
		return nil, fmt.Errorf("deep analysis admission: %w", domain.ErrBusy)
	}
	defer uc.gate.Release(subject.ID)

	if err := uc.limiter.Check(subject.ID, domain.ClassDeepFull); err != nil {
		return nil, err
	}

	latest, identity, err := uc.resolveContext(subject, identity)
	if err != nil {
		return nil, err
	}

	startedAt := uc.now()
	analysis := &domain.DeepAnalysis{
		RunID:    uuid.NewString(),
		Identity: identity,
		Features: latest.Features,
	}

	for _, module := range domain.DeepModuleOrder {
		result, err := uc.runModule(ctx, module, identity, latest.Features, analysis.Modules)
		if err != nil {
			return nil, domain.WrapError(
				domain.ErrUpstreamFailure,
				fmt.Sprintf("deep analysis module %s", module),
				err,
			)
		}
		analysis.Modules = append(analysis.Modules, *result)
		logging.FromContext(ctx, uc.logger).Info("deep_module_completed",
			"run_id", analysis.RunID,
			"module", string(module),
		)
	}

	analysis.Summary = uc.markers.Parse(analysis.ModuleText(domain.ModuleSummary))
	analysis.CreatedAt = uc.now()

	if !subject.Guest {
		uc.publishArchive(ctx, subject, analysis)
	}

	logging.FromContext(ctx, uc.logger).Info("deep_analysis_completed",
		"run_id", analysis.RunID,
		"subject_id", subject.ID,
		"artist", identity.Artist,
		"marker_count", analysis.Summary.MarkerCount,
		"duration_ms", uc.now().Sub(startedAt).Milliseconds(),
	)
	return analysis, nil
}

// SingleModule runs one requestable LLM module against identity and
// features only, without the gate.
func (uc *DeepAnalysisUseCase) SingleModule(ctx context.Context, subject domain.Subject, identity domain.ArtworkIdentity, module domain.DeepModule) (*domain.ModuleResult, error) {
	if !domain.IsRequestableModule(string(module)) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "deep analysis module", fmt.Errorf("module %q is not requestable", module))
	}

	if err := uc.limiter.Check(subject.ID, domain.ClassDeepModule); err != nil {
		return nil, err
	}

	latest, identity, err := uc.resolveContext(subject, identity)
	if err != nil {
		return nil, err
	}

	featuresResult := featuresModuleResult(latest.Features)
	result, err := uc.runModule(ctx, module, identity, latest.Features, []domain.ModuleResult{*featuresResult})
	if err != nil {
		return nil, domain.WrapError(
			domain.ErrUpstreamFailure,
			fmt.Sprintf("deep analysis module %s", module),
			err,
		)
	}

	logging.FromContext(ctx, uc.logger).Info("deep_module_completed",
		"subject_id", subject.ID,
		"module", string(module),
	)
	return result, nil
}

// resolveContext loads the prerequisite analysis and fills a missing
// identity from its top attribution.
func (uc *DeepAnalysisUseCase) resolveContext(subject domain.Subject, identity domain.ArtworkIdentity) (*domain.LatestAnalysis, domain.ArtworkIdentity, error) {
	latest, ok := uc.cache.Get(subject.ID)
	if !ok {
		return nil, identity, domain.WrapError(domain.ErrInvalidInput, "deep analysis", errors.New("no completed analysis for subject"))
	}
	if identity.Artist == "" {
		identity.Artist = latest.Result.TopArtist()
	}
	if identity.Artist == "" {
		return nil, identity, domain.WrapError(domain.ErrInvalidInput, "deep analysis", errors.New("artwork identity unresolved"))
	}
	return latest, identity, nil
}

func (uc *DeepAnalysisUseCase) runModule(ctx context.Context, module domain.DeepModule, identity domain.ArtworkIdentity, features domain.VisualFeatures, prior []domain.ModuleResult) (*domain.ModuleResult, error) {
	switch module {
	case domain.ModuleFeatures:
		return featuresModuleResult(features), nil
	case domain.ModuleSummary:
		text, err := uc.texts.Generate(ctx, summarySystemPrompt, summaryUserPrompt(identity, features, prior))
		if err != nil {
			return nil, err
		}
		return &domain.ModuleResult{Module: module, Text: stream.StripReasoning(text)}, nil
	default:
		text, err := uc.texts.Generate(ctx, deepModuleSystemPrompt, deepModuleUserPrompt(module, identity, features, prior))
		if err != nil {
			return nil, err
		}
		return &domain.ModuleResult{Module: module, Text: stream.StripReasoning(text)}, nil
	}
}

// featuresModuleResult renders the measured features as the pipeline's
// non-LLM opening module.
func featuresModuleResult(features domain.VisualFeatures) *domain.ModuleResult {
	return &domain.ModuleResult{
		Module:   domain.ModuleFeatures,
		Text:     featureLines(features),
		Features: featureMap(features),
	}
}

func featureMap(f domain.VisualFeatures) map[string]any {
	m := map[string]any{
		"brightness": f.Brightness,
		"contrast":   f.Contrast,
		"saturation": f.Saturation,
	}
	if f.Width > 0 && f.Height > 0 {
		m["width"] = f.Width
		m["height"] = f.Height
		m["aspect_ratio"] = f.AspectRatio
	}
	if len(f.DominantColors) > 0 {
		m["dominant_colors"] = f.DominantColors
	}
	return m
}

func (uc *DeepAnalysisUseCase) publishArchive(ctx context.Context, subject domain.Subject, analysis *domain.DeepAnalysis) {
	if uc.archive == nil {
		return
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		uc.logger.Warn("archive_payload_marshal_failed", "run_id", analysis.RunID, "error", err.Error())
		return
	}
	record := domain.ArchiveRecord{
		ID:        uuid.NewString(),
		SubjectID: subject.ID,
		Kind:      domain.ArchiveDeepAnalysis,
		Title:     identityLine(analysis.Identity),
		Payload:   payload,
		CreatedAt: analysis.CreatedAt,
	}
	if err := uc.archive.PublishArchiveRecord(ctx, record); err != nil {
		logging.FromContext(ctx, uc.logger).Warn("archive_publish_failed", "run_id", analysis.RunID, "error", err.Error())
	}
}
