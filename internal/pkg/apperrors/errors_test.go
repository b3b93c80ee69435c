package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be greater than zero")
	assert.True(t, errors.Is(err, ErrValidation))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "amount", ve.Field)
	assert.Contains(t, err.Error(), "amount")
}

func TestInvalidTransitionError(t *testing.T) {
	err := NewInvalidTransitionError("draft", "active")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "draft", ite.From)
	assert.Equal(t, "active", ite.To)
	assert.Contains(t, err.Error(), "'draft'")
	assert.Contains(t, err.Error(), "'active'")
}

func TestUnbalancedEntryError(t *testing.T) {
	err := &UnbalancedEntryError{ReferenceNo: "JE-1", TotalDebits: 100.00, TotalCredits: 99.50}
	assert.True(t, errors.Is(err, ErrUnbalancedEntry))
	assert.InDelta(t, 0.50, err.Delta(), 0.0001)
	assert.Contains(t, err.Error(), "JE-1")
}

func TestWrapDatabaseError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapDatabaseError(cause, "insert failed")
	assert.True(t, errors.Is(err, ErrDatabase))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "insert failed")
}
