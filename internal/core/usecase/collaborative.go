package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
	"github.com/kirillkom/art-insight-service/internal/core/stream"
	"github.com/kirillkom/art-insight-service/internal/observability/logging"
)

// CollaborativeConfig tunes the ask stream.
type CollaborativeConfig struct {
	StreamBufferSize  int
	StreamSendTimeout time.Duration
}

// CollaborativeUseCase fronts the session manager with admission policy:
// rate classes, guest rejection on create, and the ask stream.
type CollaborativeUseCase struct {
	sessions ports.SessionManager
	answers  ports.TextStreamer
	limiter  ports.RateLimiter
	logger   *slog.Logger
	cfg      CollaborativeConfig
}

func NewCollaborativeUseCase(
	sessions ports.SessionManager,
	answers ports.TextStreamer,
	limiter ports.RateLimiter,
	logger *slog.Logger,
	cfg CollaborativeConfig,
) *CollaborativeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollaborativeUseCase{
		sessions: sessions,
		answers:  answers,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
	}
}

func (uc *CollaborativeUseCase) Create(ctx context.Context, subject domain.Subject, snapshot domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	if err := uc.limiter.Check(subject.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	if subject.Guest {
		return nil, domain.WrapError(domain.ErrForbidden, "create session", errors.New("guests cannot create collaborative sessions"))
	}

	view, err := uc.sessions.Create(subject.ID, snapshot)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, uc.logger).Info("session_created",
		"session_id", view.ID,
		"owner_id", subject.ID,
	)
	return view, nil
}

func (uc *CollaborativeUseCase) Get(ctx context.Context, caller domain.Subject, id string) (*domain.SessionView, error) {
	if err := uc.limiter.Check(caller.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	return uc.sessions.Get(id)
}

func (uc *CollaborativeUseCase) GetFull(ctx context.Context, caller domain.Subject, id string) (*domain.OwnerSessionView, error) {
	if err := uc.limiter.Check(caller.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	return uc.sessions.GetFull(id, caller.ID)
}

func (uc *CollaborativeUseCase) Heartbeat(ctx context.Context, caller domain.Subject, id, viewerID string) (*domain.HeartbeatStatus, error) {
	if err := uc.limiter.Check(caller.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	if viewerID == "" {
		viewerID = caller.ID
	}
	if viewerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session heartbeat", errors.New("viewer_id is required"))
	}
	return uc.sessions.Heartbeat(id, viewerID)
}

func (uc *CollaborativeUseCase) Update(ctx context.Context, caller domain.Subject, id string, patch domain.SessionSnapshot) (*domain.OwnerSessionView, error) {
	if err := uc.limiter.Check(caller.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	return uc.sessions.Update(id, caller.ID, patch)
}

func (uc *CollaborativeUseCase) Close(ctx context.Context, caller domain.Subject, id string) error {
	if err := uc.limiter.Check(caller.ID, domain.ClassDefault); err != nil {
		return err
	}
	if err := uc.sessions.Close(id, caller.ID); err != nil {
		return err
	}
	logging.FromContext(ctx, uc.logger).Info("session_closed", "session_id", id)
	return nil
}

// Ask streams an LLM answer about the session snapshot. Admission errors
// return synchronously; afterwards text chunks arrive on the channel,
// terminated by one complete or error event.
func (uc *CollaborativeUseCase) Ask(ctx context.Context, caller domain.Subject, id, viewerID, question string) (<-chan domain.StreamEvent, error) {
	if err := uc.limiter.Check(caller.ID, domain.ClassAsk); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session ask", errors.New("question is required"))
	}

	view, err := uc.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if viewerID != "" {
		// Asking counts as presence.
		if _, err := uc.sessions.Heartbeat(id, viewerID); err != nil {
			return nil, err
		}
	}

	emitter := stream.NewEmitter(uc.cfg.StreamBufferSize, uc.cfg.StreamSendTimeout)

	go func() {
		defer emitter.Close()

		scanner := stream.NewReasoningScanner()
		forward := func(text string) error {
			if text == "" {
				return nil
			}
			return emitter.Emit(ctx, domain.TextEvent(text))
		}

		streamErr := uc.answers.GenerateStream(ctx, askSystemPrompt, askUserPrompt(view.Snapshot, question), func(chunk string) error {
			return forward(scanner.Feed(chunk))
		})
		if streamErr == nil {
			streamErr = forward(scanner.Flush())
		}
		if streamErr != nil {
			kind := domain.ErrUpstreamFailure
			if isInterruption(ctx, streamErr) {
				kind = domain.ErrStreamInterrupted
			}
			_ = emitter.Emit(ctx, domain.ErrorEvent(domain.WrapError(kind, "session ask", streamErr)))
			return
		}

		logging.FromContext(ctx, uc.logger).Info("session_ask_completed", "session_id", id)
		_ = emitter.Emit(ctx, domain.StreamEvent{Kind: domain.EventComplete})
	}()

	return emitter.Events(), nil
}
