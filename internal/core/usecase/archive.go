package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
)

// ArchiveUseCase is the worker-side consumer: it persists records the
// API published to the queue.
type ArchiveUseCase struct {
	repo   ports.ArchiveRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewArchiveUseCase(repo ports.ArchiveRepository, logger *slog.Logger) *ArchiveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveUseCase{repo: repo, logger: logger, now: time.Now}
}

func (uc *ArchiveUseCase) Archive(ctx context.Context, record domain.ArchiveRecord) error {
	if record.ID == "" || record.SubjectID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "archive record", errors.New("id and subject_id are required"))
	}

	if err := uc.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("save archive record: %w", err)
	}

	uc.logger.Info("archive_consumed",
		"record_id", record.ID,
		"kind", string(record.Kind),
		"queue_lag_ms", uc.now().Sub(record.CreatedAt).Milliseconds(),
	)
	return nil
}
