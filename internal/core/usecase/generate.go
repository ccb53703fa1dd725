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

const (
	defaultImageCount = 1
	maxImageCount     = 4
)

// GenerateUseCase turns a description into images via the diffusion
// backend, degrading to seeded placeholder URLs when the backend is down
// so the endpoint never hard-fails on backend absence.
type GenerateUseCase struct {
	images  ports.ImageGenerator
	texts   ports.TextGenerator
	limiter ports.RateLimiter
	gate    ports.OperationGate
	archive ports.ArchiveQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewGenerateUseCase(
	images ports.ImageGenerator,
	texts ports.TextGenerator,
	limiter ports.RateLimiter,
	gate ports.OperationGate,
	archive ports.ArchiveQueue,
	logger *slog.Logger,
) *GenerateUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateUseCase{
		images:  images,
		texts:   texts,
		limiter: limiter,
		gate:    gate,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

func (uc *GenerateUseCase) Generate(ctx context.Context, subject domain.Subject, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Style = strings.TrimSpace(req.Style)
	if req.Description == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate", errors.New("description is required"))
	}
	if req.Count < 1 {
		req.Count = defaultImageCount
	}
	if req.Count > maxImageCount {
		req.Count = maxImageCount
	}

	if !uc.gate.TryAcquire(subject.ID) {
		return nil, fmt.Errorf("generate admission: %w", domain.ErrBusy)
	}
	defer uc.gate.Release(subject.ID)

	if err := uc.limiter.Check(subject.ID, domain.ClassGenerate); err != nil {
		return nil, err
	}

	prompt := uc.buildPrompt(ctx, req)
	result := uc.synthesize(ctx, prompt, req.Count)

	if !subject.Guest {
		uc.publishArchive(ctx, subject, req, result)
	}

	logging.FromContext(ctx, uc.logger).Info("generation_completed",
		"subject_id", subject.ID,
		"backend", string(result.Backend),
		"images", len(result.Images),
	)
	return result, nil
}

// buildPrompt asks the LLM for a diffusion prompt and falls back to the
// user's own description when it cannot deliver one.
func (uc *GenerateUseCase) buildPrompt(ctx context.Context, req domain.GenerationRequest) string {
	text, err := uc.texts.Generate(ctx, diffusionPromptSystemPrompt, diffusionPromptUserPrompt(req))
	if err != nil {
		logging.FromContext(ctx, uc.logger).Warn("prompt_generation_failed", "error", err.Error())
		return fallbackDiffusionPrompt(req)
	}
	prompt := strings.TrimSpace(stream.StripReasoning(text))
	if prompt == "" {
		return fallbackDiffusionPrompt(req)
	}
	return prompt
}

func (uc *GenerateUseCase) synthesize(ctx context.Context, prompt string, count int) *domain.GenerationResult {
	if !uc.images.Available(ctx) {
		logging.FromContext(ctx, uc.logger).Warn("generation_placeholder", "reason", "backend_unavailable")
		return uc.placeholderResult(prompt, count)
	}

	urls, seed, err := uc.images.GenerateImages(ctx, prompt, diffusionNegativePrompt, count)
	if err != nil {
		logging.FromContext(ctx, uc.logger).Warn("generation_placeholder", "reason", "backend_error", "error", err.Error())
		return uc.placeholderResult(prompt, count)
	}

	return &domain.GenerationResult{
		Images:     urls,
		PromptUsed: prompt,
		Backend:    domain.BackendDiffusion,
		Seed:       seed,
		CreatedAt:  uc.now(),
	}
}

func (uc *GenerateUseCase) placeholderResult(prompt string, count int) *domain.GenerationResult {
	urls := make([]string, count)
	for i := range urls {
		seed := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		urls[i] = fmt.Sprintf("https://picsum.photos/seed/%s/512/512", seed)
	}
	return &domain.GenerationResult{
		Images:     urls,
		PromptUsed: prompt,
		Backend:    domain.BackendPlaceholder,
		CreatedAt:  uc.now(),
	}
}

func (uc *GenerateUseCase) publishArchive(ctx context.Context, subject domain.Subject, req domain.GenerationRequest, result *domain.GenerationResult) {
	if uc.archive == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		uc.logger.Warn("archive_payload_marshal_failed", "error", err.Error())
		return
	}
	record := domain.ArchiveRecord{
		ID:        uuid.NewString(),
		SubjectID: subject.ID,
		Kind:      domain.ArchiveGeneration,
		Title:     truncate(req.Description, 120),
		Payload:   payload,
		CreatedAt: result.CreatedAt,
	}
	if err := uc.archive.PublishArchiveRecord(ctx, record); err != nil {
		logging.FromContext(ctx, uc.logger).Warn("archive_publish_failed", "error", err.Error())
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
