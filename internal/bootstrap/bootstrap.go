package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/art-insight-service/internal/config"
	"github.com/kirillkom/art-insight-service/internal/core/markers"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
	"github.com/kirillkom/art-insight-service/internal/core/usecase"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/analysiscache"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/classifier/torchserve"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/imagegen/comfy"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/imaging"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/llm/openaichat"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/oplock"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/queue/nats"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/ratelimit"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/resilience"
	"github.com/kirillkom/art-insight-service/internal/infrastructure/session"
)

// App wires configuration, infrastructure adapters and use cases for
// both binaries: the api serves the inbound ports, the worker drains
// the archive queue into the repository.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.ArchiveQueue
	Repo  ports.ArchiveRepository

	Analyzer      ports.ArtworkAnalyzer
	Deep          ports.DeepAnalyzer
	Generator     ports.ArtworkGenerator
	Collaborative ports.CollaborativeService
	History       ports.HistoryReader
	Archiver      ports.RecordArchiver

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewArchiveRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive queue: %w", err)
	}

	classifier := torchserve.New(
		cfg.ClassifierURL,
		cfg.ClassifierModel,
		time.Duration(cfg.ClassifierTimeoutSeconds)*time.Second,
		executor,
	)

	llmClient := openaichat.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMVisionModel, executor)
	texts := openaichat.NewGenerator(llmClient)
	vision := openaichat.NewVision(llmClient)

	var images ports.ImageGenerator = disabledImageGenerator{}
	if cfg.ComfyUIEnabled {
		images = comfy.New(
			cfg.ComfyUIBaseURL,
			cfg.ComfyUICheckpoint,
			time.Duration(cfg.ComfyUITimeoutSeconds)*time.Second,
			executor,
		)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:     time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
		Analyze:    cfg.RateLimitAnalyze,
		Generate:   cfg.RateLimitGenerate,
		DeepFull:   cfg.RateLimitDeepFull,
		DeepModule: cfg.RateLimitDeepModule,
		Ask:        cfg.RateLimitAsk,
		Default:    cfg.RateLimitDefault,
	})
	gate := oplock.New()
	cache := analysiscache.New(time.Duration(cfg.AnalysisCacheTTLSeconds) * time.Second)
	sessions := session.NewManager(
		time.Duration(cfg.SessionTTLSeconds)*time.Second,
		time.Duration(cfg.SessionPresenceSeconds)*time.Second,
	)

	parser := markers.NewParser()
	if cfg.MarkerConfigPath != "" {
		parser, err = markers.NewParserFromFile(cfg.MarkerConfigPath)
		if err != nil {
			queue.Close()
			_ = db.Close()
			return nil, fmt.Errorf("load marker config: %w", err)
		}
	}

	streamTimeout := time.Duration(cfg.StreamSendTimeoutSeconds) * time.Second

	analyzer := usecase.NewAnalyzeUseCase(
		classifier,
		vision,
		texts,
		imaging.New(),
		limiter,
		gate,
		cache,
		queue,
		logger,
		usecase.AnalyzeConfig{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			VisionEnabled:       cfg.LLMVisionEnabled,
			StreamBufferSize:    cfg.StreamBufferSize,
			StreamSendTimeout:   streamTimeout,
		},
	)
	deep := usecase.NewDeepAnalysisUseCase(texts, cache, limiter, gate, queue, parser, logger)
	generator := usecase.NewGenerateUseCase(images, texts, limiter, gate, queue, logger)
	collaborative := usecase.NewCollaborativeUseCase(sessions, texts, limiter, logger, usecase.CollaborativeConfig{
		StreamBufferSize:  cfg.StreamBufferSize,
		StreamSendTimeout: streamTimeout,
	})
	history := usecase.NewHistoryUseCase(repo, limiter)
	archiver := usecase.NewArchiveUseCase(repo, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue: queue,
		Repo:  repo,

		Analyzer:      analyzer,
		Deep:          deep,
		Generator:     generator,
		Collaborative: collaborative,
		History:       history,
		Archiver:      archiver,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// disabledImageGenerator keeps the generation endpoint serving
// placeholders when no diffusion backend is deployed.
type disabledImageGenerator struct{}

func (disabledImageGenerator) Available(context.Context) bool { return false }

func (disabledImageGenerator) GenerateImages(context.Context, string, string, int) ([]string, int64, error) {
	return nil, 0, errors.New("image generation backend disabled")
}
