package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lending-engine/internal/domain/borrower"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type BorrowerRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewBorrowerRepository(db DBPool, logger *slog.Logger) *BorrowerRepository {
	return &BorrowerRepository{db: db, logger: logger.With("component", "BorrowerRepository")}
}

func (r *BorrowerRepository) GetByID(ctx context.Context, borrowerID int64) (*borrower.Borrower, error) {
	query := `SELECT id, name, active, created_at FROM borrowers WHERE id = $1`

	var b borrower.Borrower
	err := r.db.QueryRow(ctx, query, borrowerID).Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: borrower %d", apperrors.ErrNotFound, borrowerID)
		}
		r.logger.ErrorContext(ctx, "Failed to get borrower", "borrower_id", borrowerID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return &b, nil
}
