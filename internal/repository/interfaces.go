package repository

import (
	"context"
	"time"

	"github.com/segyhp/rental-ledger/internal/domain"
)

// Missing rows are reported as sql.ErrNoRows by every implementation.

// LeaseRepository reads leases owned by the surrounding CRUD layer
type LeaseRepository interface {
	// GetByID retrieves a lease by its ID
	GetByID(ctx context.Context, id string) (*domain.Lease, error)
}

// ChargeRepository defines the interface for charge data operations
type ChargeRepository interface {
	// Create inserts a new charge
	Create(ctx context.Context, charge *domain.Charge) error

	// GetByID retrieves a charge by its ID
	GetByID(ctx context.Context, id string) (*domain.Charge, error)

	// GetByIDForUpdate retrieves a charge and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Charge, error)

	// GetByIDsForUpdate locks a set of charges in due-date order. Unknown ids are skipped.
	GetByIDsForUpdate(ctx context.Context, ids []string) ([]*domain.Charge, error)

	// ListByLease lists a lease's charges ordered by due date, then id
	ListByLease(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error)

	// ListOpenByLeaseForUpdate locks every open or partial charge of a lease
	ListOpenByLeaseForUpdate(ctx context.Context, leaseID string) ([]*domain.Charge, error)

	// Update writes the mutable fields if the stored version still matches
	// charge.Version, then bumps the version. A stale version yields ErrConcurrentUpdate.
	Update(ctx context.Context, charge *domain.Charge) error

	// ListLateFeeCandidates pages through open, fee-eligible charges without a late fee
	// whose LLC has an enabled, non-zero policy and whose grace period has ended by asOf.
	// Results start after the cursor (nil for the first page).
	ListLateFeeCandidates(ctx context.Context, asOf time.Time, after *domain.ChargeCursor, limit int) ([]*domain.Charge, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create inserts a payment together with its allocations
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment and its allocations
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByIDForUpdate retrieves and locks a payment
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error)

	// ListByLease retrieves all payments for a lease, newest first
	ListByLease(ctx context.Context, leaseID string) ([]*domain.Payment, error)

	// UpdateStatus persists status and refunded_at
	UpdateStatus(ctx context.Context, payment *domain.Payment) error
}

// LateFeePolicyRepository stores per-LLC late fee settings
type LateFeePolicyRepository interface {
	// GetByLLC retrieves the policy of an LLC
	GetByLLC(ctx context.Context, llcID string) (*domain.LateFeePolicy, error)

	// Upsert creates or replaces the policy of an LLC
	Upsert(ctx context.Context, policy *domain.LateFeePolicy) error
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Leases   LeaseRepository
	Charges  ChargeRepository
	Payments PaymentRepository
	Policies LateFeePolicyRepository
}

// TxFunc is the body of a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is the ledger's view of its datastore.
type Store interface {
	// Repos returns repositories for non-transactional reads
	Repos() Repositories

	// WithinTx runs fn in a serializable transaction, retrying it on contention
	WithinTx(ctx context.Context, fn TxFunc) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
