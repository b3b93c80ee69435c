package borrower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lending-engine/internal/pkg/apperrors"
)

type BorrowerService interface {
	GetBorrower(ctx context.Context, borrowerID int64) (*Borrower, error)
}

type borrowerServiceImpl struct {
	repo   Repository
	logger *slog.Logger
}

func NewBorrowerService(repo Repository, logger *slog.Logger) BorrowerService {
	return &borrowerServiceImpl{repo: repo, logger: logger.With("component", "BorrowerService")}
}

func (s *borrowerServiceImpl) GetBorrower(ctx context.Context, borrowerID int64) (*Borrower, error) {
	b, err := s.repo.GetByID(ctx, borrowerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Borrower not found", "borrower_id", borrowerID)
			return nil, fmt.Errorf("%w: borrower %d not found", apperrors.ErrNotFound, borrowerID)
		}
		s.logger.ErrorContext(ctx, "Failed to get borrower", "borrower_id", borrowerID, "error", err)
		return nil, err
	}
	return b, nil
}
