package borrower

import "context"

type Repository interface {
	GetByID(ctx context.Context, borrowerID int64) (*Borrower, error)
}
