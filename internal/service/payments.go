package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/repository"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

type RecordPaymentInput struct {
	LeaseID  string
	TenantID string
	Amount   domain.Money
	Method   domain.PaymentMethod
	// PaymentDate defaults to today.
	PaymentDate *time.Time
	Reference   string
	// Allocations, when non-nil, replace FIFO allocation.
	Allocations    []domain.Allocation
	IdempotencyKey string
	ActorID        string
}

// RecordPayment stores a succeeded payment and applies it to the lease's
// charges in one transaction. Explicit allocations must cover the full amount;
// otherwise the oldest open charges are paid first and any remainder is kept
// as unallocated credit.
func (s *LedgerService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*domain.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, customError.WrapValidation(fmt.Sprintf("payment amount must be positive, got %d", in.Amount))
	}
	if !in.Method.Valid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown payment method %q", in.Method))
	}

	paymentID := uuid.NewString()
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" && s.keys != nil {
		scoped := in.LeaseID + ":" + key
		owner, claimed, err := s.keys.Claim(ctx, scoped, paymentID)
		if err != nil {
			return nil, customError.WrapCacheError(err)
		}
		if !claimed {
			return s.replayPayment(ctx, key, owner)
		}
		payment, err := s.recordPayment(ctx, paymentID, in)
		if err != nil {
			if relErr := s.keys.Release(ctx, scoped); relErr != nil {
				s.logger.Warn("release idempotency key",
					zap.String("key", key),
					zap.Error(relErr),
				)
			}
			return nil, err
		}
		return payment, nil
	}

	return s.recordPayment(ctx, paymentID, in)
}

func (s *LedgerService) replayPayment(ctx context.Context, key, paymentID string) (*domain.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if customError.Code(err) == customError.ErrCodeNotFound {
		return nil, customError.WrapValidation(fmt.Sprintf("idempotency key %s is held by a payment still in progress", key))
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment replayed",
		zap.String("payment_id", payment.ID),
		zap.String("idempotency_key", key),
	)
	return payment, nil
}

func (s *LedgerService) recordPayment(ctx context.Context, paymentID string, in RecordPaymentInput) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		lease, err := repos.Leases.GetByID(ctx, in.LeaseID)
		if err != nil {
			return notFound(err, "Lease", in.LeaseID)
		}

		plan, charges, err := s.planAllocations(ctx, repos, in)
		if err != nil {
			return err
		}

		now := s.now()
		for _, a := range plan.Allocations {
			charge := charges[a.ChargeID]
			if err := charge.ApplyPayment(a.Amount, now); err != nil {
				return err
			}
			if err := repos.Charges.Update(ctx, charge); err != nil {
				return err
			}
		}

		p := &domain.Payment{
			ID:                paymentID,
			LLCID:             lease.LLCID,
			LeaseID:           lease.ID,
			TenantID:          in.TenantID,
			Amount:            in.Amount,
			Method:            in.Method,
			Status:            domain.PaymentStatusSucceeded,
			Allocations:       plan.Allocations,
			UnallocatedAmount: plan.Unallocated,
			PaymentDate:       s.today(),
			CreatedBy:         in.ActorID,
			CreatedAt:         now,
		}
		if p.TenantID == "" {
			p.TenantID = lease.TenantID
		}
		if in.PaymentDate != nil {
			p.PaymentDate = utils.DateOnly(*in.PaymentDate)
		}
		if ref := strings.TrimSpace(in.Reference); ref != "" {
			p.Reference = &ref
		}
		if !p.Balanced() {
			return customError.WrapInvalidAllocation("allocations and remainder do not add up to the payment amount")
		}

		if err := repos.Payments.Create(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("lease_id", payment.LeaseID),
		zap.Int64("amount", payment.Amount.Cents()),
		zap.Int("allocations", len(payment.Allocations)),
		zap.Int64("unallocated", payment.UnallocatedAmount.Cents()),
	)
	s.publish(ctx, events.LedgerEvent{
		Type:    events.TypePaymentRecorded,
		LLCID:   payment.LLCID,
		LeaseID: payment.LeaseID,
		ActorID: in.ActorID,
		Data:    payment,
	})
	return payment, nil
}

// planAllocations locks the charges the payment will touch and decides how much
// each one receives.
func (s *LedgerService) planAllocations(ctx context.Context, repos repository.Repositories, in RecordPaymentInput) (domain.AllocationPlan, map[string]*domain.Charge, error) {
	var locked []*domain.Charge
	var err error
	if in.Allocations != nil {
		ids := make([]string, 0, len(in.Allocations))
		for _, a := range in.Allocations {
			ids = append(ids, a.ChargeID)
		}
		locked, err = repos.Charges.GetByIDsForUpdate(ctx, ids)
	} else {
		locked, err = repos.Charges.ListOpenByLeaseForUpdate(ctx, in.LeaseID)
	}
	if err != nil {
		return domain.AllocationPlan{}, nil, err
	}

	byID := make(map[string]*domain.Charge, len(locked))
	for _, c := range locked {
		byID[c.ID] = c
	}

	if in.Allocations != nil {
		plan, err := domain.ValidateAllocations(in.Amount, in.LeaseID, in.Allocations, byID)
		return plan, byID, err
	}
	return domain.AllocateFIFO(in.Amount, locked), byID, nil
}

func (s *LedgerService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := s.store.Repos().Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, dbErr(notFound(err, "Payment", paymentID))
	}
	return payment, nil
}

// ListPayments returns a lease's payments, newest first.
func (s *LedgerService) ListPayments(ctx context.Context, leaseID string) ([]*domain.Payment, error) {
	payments, err := s.store.Repos().Payments.ListByLease(ctx, leaseID)
	if err != nil {
		return nil, dbErr(err)
	}
	return payments, nil
}

// RefundPayment marks a payment refunded. Its allocations and the charges they
// paid are left untouched.
func (s *LedgerService) RefundPayment(ctx context.Context, paymentID, actorID string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p, err := repos.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return notFound(err, "Payment", paymentID)
		}
		if err := p.Refund(s.now()); err != nil {
			return err
		}
		if err := repos.Payments.UpdateStatus(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("actor_id", actorID),
	)
	s.publish(ctx, events.LedgerEvent{
		Type:    events.TypePaymentRefunded,
		LLCID:   payment.LLCID,
		LeaseID: payment.LeaseID,
		ActorID: actorID,
		Data:    payment,
	})
	return payment, nil
}
