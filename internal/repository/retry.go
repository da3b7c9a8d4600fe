package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryableError decides whether a failed attempt may be repeated.
type IsRetryableError func(err error) bool

const DefaultMaxRetries = 3

// Postgres SQLSTATE codes that signal a transient conflict between transactions.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// lateFeeSourceConstraint guards "one late fee per source charge". Hitting it
// means a concurrent transaction applied the fee first.
const lateFeeSourceConstraint = "uq_charges_source_charge_id"

// WithRetries runs op once plus up to maxRetries more times while it fails with
// a retryable error. Backoff grows linearly with the attempt number.
func WithRetries(ctx context.Context, op Operation, maxRetries int, isRetryable IsRetryableError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if attempt == maxRetries || !isRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(20*(attempt+1)) * time.Millisecond):
		}
	}
	return err
}

// IsContentionError reports transaction conflicts: serialization failures,
// deadlocks, lost compare-and-set updates and a lost late-fee race.
// Business errors are never contention.
func IsContentionError(err error) bool {
	if err == nil || customError.IsBusiness(err) {
		return false
	}
	if errors.Is(err, customError.ErrConcurrentUpdate) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return true
		case pqUniqueViolation:
			return pqErr.Constraint == lateFeeSourceConstraint
		}
	}
	return false
}
