package usecase

import (
	"context"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
	"github.com/kirillkom/art-insight-service/internal/core/ports"
)

// HistoryUseCase serves the subject's archived results. Guests simply
// have no rows, since nothing is ever archived for them.
type HistoryUseCase struct {
	repo    ports.ArchiveRepository
	limiter ports.RateLimiter
}

func NewHistoryUseCase(repo ports.ArchiveRepository, limiter ports.RateLimiter) *HistoryUseCase {
	return &HistoryUseCase{repo: repo, limiter: limiter}
}

func (uc *HistoryUseCase) Recent(ctx context.Context, subject domain.Subject, limit int) ([]domain.ArchiveRecord, error) {
	if err := uc.limiter.Check(subject.ID, domain.ClassDefault); err != nil {
		return nil, err
	}
	records, err := uc.repo.ListBySubject(ctx, subject.ID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstreamFailure, "list history", err)
	}
	if records == nil {
		records = []domain.ArchiveRecord{}
	}
	return records, nil
}
