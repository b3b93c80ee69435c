package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/loan"
	"lending-engine/internal/pkg/apperrors"
)

// AgingJob runs daily: it flags installments past their due date as overdue
// and moves loans whose oldest unpaid installment has aged beyond the
// configured days-past-due threshold from active to defaulted.
type AgingJob struct {
	loanRepo                loan.Repository
	loanService             loan.LoanService
	defaultAfterDaysPastDue int
	logger                  *slog.Logger
}

func NewAgingJob(loanRepo loan.Repository, loanService loan.LoanService, defaultAfterDaysPastDue int, logger *slog.Logger) *AgingJob {
	if loanRepo == nil || loanService == nil || logger == nil {
		panic("AgingJob dependencies cannot be nil")
	}
	if defaultAfterDaysPastDue <= 0 {
		defaultAfterDaysPastDue = 90
	}
	return &AgingJob{
		loanRepo:                loanRepo,
		loanService:             loanService,
		defaultAfterDaysPastDue: defaultAfterDaysPastDue,
		logger:                  logger.With("job", "Aging"),
	}
}

func (j *AgingJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting loan aging job.")

	now := time.Now()
	flagged, err := j.loanRepo.MarkOverdueInstallments(ctx, now)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to flag overdue installments, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run aging job, overdue flagging failed: %w", err)
	}
	j.logger.InfoContext(ctx, "Flagged overdue installments.", slog.Int64("count", flagged))

	cutoff := now.AddDate(0, 0, -j.defaultAfterDaysPastDue)
	candidates, err := j.loanRepo.GetDefaultCandidateLoanIDs(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to get default candidates, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run aging job, candidate query failed: %w", err)
	}

	var defaulted, errorCount int
	for _, loanID := range candidates {
		logCtx := j.logger.With(slog.Int64("loanID", loanID))
		if err := j.loanService.MarkDefaulted(ctx, loanID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				logCtx.WarnContext(ctx, "Loan disappeared during aging run", slog.Any("error", err))
				continue
			}
			logCtx.ErrorContext(ctx, "Failed to mark loan defaulted", slog.Any("error", err))
			errorCount++
			continue
		}
		defaulted++
	}

	j.logger.InfoContext(ctx, "Loan aging job finished.",
		slog.Int64("installments_flagged", flagged),
		slog.Int("candidates", len(candidates)),
		slog.Int("defaulted", defaulted),
		slog.Int("errors", errorCount),
		slog.Duration("duration", time.Since(startTime)))

	if errorCount > 0 {
		return fmt.Errorf("aging job completed with %d errors", errorCount)
	}
	return nil
}
