package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation = errors.New("validation failed")

	ErrAlreadyExists = errors.New("resource already exists")

	ErrDatabase = errors.New("database error")

	ErrInternalServer = errors.New("internal server error")

	ErrInvalidTransition = errors.New("invalid loan state transition")

	ErrUnbalancedEntry = errors.New("journal entry is not balanced")

	ErrInsufficientSchedule = errors.New("payment exceeds outstanding obligation")

	ErrConcurrencyConflict = errors.New("concurrent modification conflict")

	ErrUnauthorized = errors.New("unauthorized")

	ErrForbidden = errors.New("forbidden")

	ErrConflict = errors.New("resource conflict")
)

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {
	return fmt.Errorf("%w: %w", ErrValidation, &ValidationError{Field: field, Message: message})
}

// InvalidTransitionError names both ends of a rejected lifecycle transition.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition loan from '%s' to '%s'", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func NewInvalidTransitionError(from, to string) error {
	return &InvalidTransitionError{From: from, To: to}
}

// UnbalancedEntryError carries the computed debit and credit totals so the
// caller can see the exact delta that broke the ledger invariant.
type UnbalancedEntryError struct {
	ReferenceNo  string
	TotalDebits  float64
	TotalCredits float64
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("journal entry '%s' is unbalanced: debits %.2f, credits %.2f, delta %.2f",
		e.ReferenceNo, e.TotalDebits, e.TotalCredits, e.Delta())
}

func (e *UnbalancedEntryError) Unwrap() error {
	return ErrUnbalancedEntry
}

func (e *UnbalancedEntryError) Delta() float64 {
	return e.TotalDebits - e.TotalCredits
}

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func WrapDatabaseError(cause error, message string) error {
	return &AppError{
		Code:    "DB_ERROR",
		Message: message,
		Cause:   fmt.Errorf("%w: %w", ErrDatabase, cause),
	}
}
