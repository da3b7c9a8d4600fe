package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrLateFeeDisabled   = errors.New("late fees are disabled")
	ErrInvalidType       = errors.New("charge type is not eligible")
	ErrAlreadyApplied    = errors.New("late fee already applied")
	ErrGracePeriod       = errors.New("charge is within its grace period")
	ErrZeroFee           = errors.New("computed late fee is zero")
	ErrInvalidAllocation = errors.New("invalid allocation")
	ErrValidation        = errors.New("validation failed")

	// ErrConcurrentUpdate is returned by a compare-and-set write that lost a race.
	// Transactions that fail with it are retried.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidStatus     = "INVALID_STATUS"
	ErrCodeLateFeeDisabled   = "LATE_FEE_DISABLED"
	ErrCodeInvalidType       = "INVALID_TYPE"
	ErrCodeAlreadyApplied    = "ALREADY_APPLIED"
	ErrCodeGracePeriod       = "GRACE_PERIOD"
	ErrCodeZeroFee           = "ZERO_FEE"
	ErrCodeInvalidAllocation = "INVALID_ALLOCATION"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeCacheError        = "CACHE_ERROR"
)

// Code returns the business code carried by err, or ErrCodeDatabaseError
// when err is not a BusinessError.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeDatabaseError
}

// IsBusiness reports whether err is an expected, terminal business outcome.
func IsBusiness(err error) bool {
	var be *BusinessError
	if !errors.As(err, &be) {
		return false
	}
	return be.Code != ErrCodeDatabaseError && be.Code != ErrCodeCacheError
}

func WrapNotFound(kind, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", kind, id),
		ErrNotFound,
	)
}

func WrapInvalidStatus(kind, id, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidStatus,
		fmt.Sprintf("%s %s has status %s", kind, id, status),
		ErrInvalidStatus,
	)
}

func WrapAlreadyVoid(chargeID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidStatus,
		fmt.Sprintf("Charge %s is already void", chargeID),
		ErrInvalidStatus,
	)
}

func WrapLateFeeDisabled(llcID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLateFeeDisabled,
		fmt.Sprintf("Late fees are disabled for LLC %s", llcID),
		ErrLateFeeDisabled,
	)
}

func WrapInvalidType(chargeID, chargeType string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidType,
		fmt.Sprintf("Charge %s of type %s is not eligible for a late fee", chargeID, chargeType),
		ErrInvalidType,
	)
}

func WrapAlreadyApplied(chargeID, lateFeeChargeID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyApplied,
		fmt.Sprintf("Charge %s already has late fee %s", chargeID, lateFeeChargeID),
		ErrAlreadyApplied,
	)
}

func WrapGracePeriod(chargeID, eligibleOn string) *BusinessError {
	return NewBusinessError(
		ErrCodeGracePeriod,
		fmt.Sprintf("Charge %s is not late-fee eligible until %s", chargeID, eligibleOn),
		ErrGracePeriod,
	)
}

func WrapZeroFee(chargeID string) *BusinessError {
	return NewBusinessError(
		ErrCodeZeroFee,
		fmt.Sprintf("Late fee for charge %s computes to zero", chargeID),
		ErrZeroFee,
	)
}

func WrapInvalidAllocation(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAllocation,
		message,
		ErrInvalidAllocation,
	)
}

func WrapInvalidChargeAllocation(chargeID, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAllocation,
		fmt.Sprintf("Charge %s: %s", chargeID, reason),
		ErrInvalidAllocation,
	)
}

func WrapValidation(message string) *BusinessError {
	return NewBusinessError(
		ErrCodeValidation,
		message,
		ErrValidation,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
