// Package memory is an in-process Store. Write transactions are serialized
// and work on a private copy of the data that replaces the committed state
// only when the transaction body succeeds.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/repository"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

type state struct {
	leases   map[string]domain.Lease
	charges  map[string]domain.Charge
	payments map[string]domain.Payment
	policies map[string]domain.LateFeePolicy
}

func newState() *state {
	return &state{
		leases:   map[string]domain.Lease{},
		charges:  map[string]domain.Charge{},
		payments: map[string]domain.Payment{},
		policies: map[string]domain.LateFeePolicy{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.leases {
		c.leases[k] = v
	}
	for k, v := range s.charges {
		c.charges[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = copyPayment(v)
	}
	for k, v := range s.policies {
		c.policies[k] = v
	}
	return c
}

func copyPayment(p domain.Payment) domain.Payment {
	allocations := make([]domain.Allocation, len(p.Allocations))
	copy(allocations, p.Allocations)
	p.Allocations = allocations
	return p
}

// Store implements repository.Store in memory.
type Store struct {
	mu         sync.RWMutex
	txMu       sync.Mutex
	committed  *state
	maxRetries int
	faults     map[string][]error
}

func NewStore() *Store {
	return &Store{
		committed:  newState(),
		maxRetries: repository.DefaultMaxRetries,
		faults:     map[string][]error{},
	}
}

// AddLease seeds a lease, standing in for the external CRUD layer.
func (s *Store) AddLease(lease domain.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.leases[lease.ID] = lease
}

// PutPolicy seeds a late fee policy.
func (s *Store) PutPolicy(policy domain.LateFeePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.policies[policy.LLCID] = policy
}

// FailNext queues err to be returned by the next call of op, e.g.
// "payments.create" or "charges.update".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.faults[op]
	if len(queued) == 0 {
		return nil
	}
	s.faults[op] = queued[1:]
	return queued[0]
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(func(fn func(*state)) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		fn(s.committed)
	}, nil)
}

func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return repository.WithRetries(ctx, func() error {
		s.txMu.Lock()
		defer s.txMu.Unlock()

		s.mu.RLock()
		working := s.committed.clone()
		s.mu.RUnlock()

		access := func(f func(*state)) { f(working) }
		if err := fn(ctx, s.repos(access, access)); err != nil {
			return err
		}
		if err := s.fault("commit"); err != nil {
			return err
		}

		s.mu.Lock()
		s.committed = working
		s.mu.Unlock()
		return nil
	}, s.maxRetries, repository.IsContentionError)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type accessor func(func(*state))

// repos binds repositories to a reader and a writer. A nil writer makes
// writes outside a transaction go straight to the committed state.
func (s *Store) repos(read, write accessor) repository.Repositories {
	if write == nil {
		write = func(fn func(*state)) {
			s.txMu.Lock()
			defer s.txMu.Unlock()
			s.mu.Lock()
			defer s.mu.Unlock()
			fn(s.committed)
		}
	}
	return repository.Repositories{
		Leases:   &leaseRepo{read: read},
		Charges:  &chargeRepo{store: s, read: read, write: write},
		Payments: &paymentRepo{store: s, read: read, write: write},
		Policies: &policyRepo{read: read, write: write},
	}
}

type leaseRepo struct {
	read accessor
}

func (r *leaseRepo) GetByID(ctx context.Context, id string) (*domain.Lease, error) {
	var out *domain.Lease
	r.read(func(st *state) {
		if l, ok := st.leases[id]; ok {
			out = &l
		}
	})
	if out == nil {
		return nil, sql.ErrNoRows
	}
	return out, nil
}

type chargeRepo struct {
	store *Store
	read  accessor
	write accessor
}

func (r *chargeRepo) Create(ctx context.Context, charge *domain.Charge) error {
	if err := r.store.fault("charges.create"); err != nil {
		return err
	}
	var err error
	r.write(func(st *state) {
		if _, exists := st.charges[charge.ID]; exists {
			err = fmt.Errorf("charge %s already exists", charge.ID)
			return
		}
		if charge.SourceChargeID != nil {
			for _, c := range st.charges {
				if c.SourceChargeID != nil && *c.SourceChargeID == *charge.SourceChargeID {
					err = fmt.Errorf("late fee for %s exists: %w", *charge.SourceChargeID, customError.ErrConcurrentUpdate)
					return
				}
			}
		}
		st.charges[charge.ID] = *charge
	})
	return err
}

func (r *chargeRepo) GetByID(ctx context.Context, id string) (*domain.Charge, error) {
	var out *domain.Charge
	r.read(func(st *state) {
		if c, ok := st.charges[id]; ok {
			out = &c
		}
	})
	if out == nil {
		return nil, sql.ErrNoRows
	}
	return out, nil
}

func (r *chargeRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Charge, error) {
	return r.GetByID(ctx, id)
}

func (r *chargeRepo) GetByIDsForUpdate(ctx context.Context, ids []string) ([]*domain.Charge, error) {
	out := []*domain.Charge{}
	r.read(func(st *state) {
		seen := map[string]bool{}
		for _, id := range ids {
			if c, ok := st.charges[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, &c)
			}
		}
	})
	domain.SortChargesByDueDate(out)
	return out, nil
}

func (r *chargeRepo) ListByLease(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error) {
	out := []*domain.Charge{}
	r.read(func(st *state) {
		for _, c := range st.charges {
			c := c
			if c.LeaseID == leaseID && filter.Matches(&c) {
				out = append(out, &c)
			}
		}
	})
	domain.SortChargesByDueDate(out)
	return out, nil
}

func (r *chargeRepo) ListOpenByLeaseForUpdate(ctx context.Context, leaseID string) ([]*domain.Charge, error) {
	out := []*domain.Charge{}
	r.read(func(st *state) {
		for _, c := range st.charges {
			c := c
			if c.LeaseID == leaseID && c.IsOpen() {
				out = append(out, &c)
			}
		}
	})
	domain.SortChargesByDueDate(out)
	return out, nil
}

func (r *chargeRepo) Update(ctx context.Context, charge *domain.Charge) error {
	if err := r.store.fault("charges.update"); err != nil {
		return err
	}
	var err error
	r.write(func(st *state) {
		stored, ok := st.charges[charge.ID]
		if !ok || stored.Version != charge.Version {
			err = fmt.Errorf("charge %s version %d: %w", charge.ID, charge.Version, customError.ErrConcurrentUpdate)
			return
		}
		next := *charge
		next.Version++
		st.charges[charge.ID] = next
	})
	if err == nil {
		charge.Version++
	}
	return err
}

func (r *chargeRepo) ListLateFeeCandidates(ctx context.Context, asOf time.Time, after *domain.ChargeCursor, limit int) ([]*domain.Charge, error) {
	out := []*domain.Charge{}
	r.read(func(st *state) {
		for _, c := range st.charges {
			c := c
			if !c.IsOpen() || !c.Type.LateFeeEligible() || c.LateFeeAppliedChargeID != nil || !after.Precedes(&c) {
				continue
			}
			policy, ok := st.policies[c.LLCID]
			if !ok || !policy.Enabled || !policy.FeeAmount.IsPositive() {
				continue
			}
			if asOf.Before(c.LateFeeEligibleOn(policy.GraceDays)) {
				continue
			}
			out = append(out, &c)
		}
	})
	domain.SortChargesByDueDate(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type paymentRepo struct {
	store *Store
	read  accessor
	write accessor
}

func (r *paymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	if err := r.store.fault("payments.create"); err != nil {
		return err
	}
	var err error
	r.write(func(st *state) {
		if _, exists := st.payments[payment.ID]; exists {
			err = fmt.Errorf("payment %s already exists", payment.ID)
			return
		}
		st.payments[payment.ID] = copyPayment(*payment)
	})
	return err
}

func (r *paymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var out *domain.Payment
	r.read(func(st *state) {
		if p, ok := st.payments[id]; ok {
			cp := copyPayment(p)
			out = &cp
		}
	})
	if out == nil {
		return nil, sql.ErrNoRows
	}
	return out, nil
}

func (r *paymentRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) ListByLease(ctx context.Context, leaseID string) ([]*domain.Payment, error) {
	out := []*domain.Payment{}
	r.read(func(st *state) {
		for _, p := range st.payments {
			if p.LeaseID == leaseID {
				cp := copyPayment(p)
				out = append(out, &cp)
			}
		}
	})
	sortPaymentsNewestFirst(out)
	return out, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, payment *domain.Payment) error {
	var err error
	r.write(func(st *state) {
		stored, ok := st.payments[payment.ID]
		if !ok {
			err = sql.ErrNoRows
			return
		}
		stored.Status = payment.Status
		stored.RefundedAt = payment.RefundedAt
		st.payments[payment.ID] = stored
	})
	return err
}

type policyRepo struct {
	read  accessor
	write accessor
}

func (r *policyRepo) GetByLLC(ctx context.Context, llcID string) (*domain.LateFeePolicy, error) {
	var out *domain.LateFeePolicy
	r.read(func(st *state) {
		if p, ok := st.policies[llcID]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, sql.ErrNoRows
	}
	return out, nil
}

func (r *policyRepo) Upsert(ctx context.Context, policy *domain.LateFeePolicy) error {
	r.write(func(st *state) {
		st.policies[policy.LLCID] = *policy
	})
	return nil
}

func sortPaymentsNewestFirst(payments []*domain.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if !a.PaymentDate.Equal(b.PaymentDate) {
			return a.PaymentDate.After(b.PaymentDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
