package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", WrapNotFound("Charge", "c-1"), ErrCodeNotFound},
		{"wrapped business error", fmt.Errorf("apply: %w", WrapGracePeriod("c-1", "2024-01-06")), ErrCodeGracePeriod},
		{"plain error", errors.New("connection reset"), ErrCodeDatabaseError},
		{"cache", WrapCacheError(errors.New("timeout")), ErrCodeCacheError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestIsBusiness(t *testing.T) {
	assert.True(t, IsBusiness(WrapAlreadyApplied("c-1", "fee-1")))
	assert.True(t, IsBusiness(fmt.Errorf("outer: %w", WrapValidation("bad"))))
	assert.False(t, IsBusiness(WrapDatabaseError(errors.New("boom"))))
	assert.False(t, IsBusiness(WrapCacheError(errors.New("boom"))))
	assert.False(t, IsBusiness(errors.New("boom")))
	assert.False(t, IsBusiness(nil))
}

func TestBusinessError_Unwrap(t *testing.T) {
	err := WrapInvalidChargeAllocation("c-9", "exceeds remaining balance")

	assert.ErrorIs(t, err, ErrInvalidAllocation)
	assert.Equal(t, "INVALID_ALLOCATION: Charge c-9: exceeds remaining balance (invalid allocation)", err.Error())

	cause := errors.New("deadlock")
	assert.ErrorIs(t, WrapDatabaseError(cause), cause)
}

func TestBusinessError_ErrorWithoutCause(t *testing.T) {
	err := NewBusinessError(ErrCodeValidation, "amount must be positive", nil)

	assert.Equal(t, "VALIDATION_ERROR: amount must be positive", err.Error())
}
