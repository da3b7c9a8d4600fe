package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/repository"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

type CreateChargeInput struct {
	LeaseID     string
	Period      string
	Type        domain.ChargeType
	Amount      domain.Money
	DueDate     time.Time
	Description string
	ActorID     string
}

// CreateCharge adds an open charge to a lease. The LLC is taken from the lease.
func (s *LedgerService) CreateCharge(ctx context.Context, in CreateChargeInput) (*domain.Charge, error) {
	var charge *domain.Charge
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		lease, err := repos.Leases.GetByID(ctx, in.LeaseID)
		if err != nil {
			return notFound(err, "Lease", in.LeaseID)
		}

		c, err := domain.NewCharge(domain.NewChargeParams{
			ID:          uuid.NewString(),
			Lease:       lease,
			Period:      in.Period,
			Type:        in.Type,
			Amount:      in.Amount,
			DueDate:     in.DueDate,
			Description: in.Description,
			CreatedBy:   in.ActorID,
			Now:         s.now(),
		})
		if err != nil {
			return err
		}
		if err := repos.Charges.Create(ctx, c); err != nil {
			return err
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("charge created",
		zap.String("charge_id", charge.ID),
		zap.String("lease_id", charge.LeaseID),
		zap.String("type", string(charge.Type)),
		zap.Int64("amount", charge.Amount.Cents()),
	)
	s.publish(ctx, events.LedgerEvent{
		Type:    events.TypeChargeCreated,
		LLCID:   charge.LLCID,
		LeaseID: charge.LeaseID,
		ActorID: in.ActorID,
		Data:    charge,
	})
	return charge, nil
}

func (s *LedgerService) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	charge, err := s.store.Repos().Charges.GetByID(ctx, chargeID)
	if err != nil {
		return nil, dbErr(notFound(err, "Charge", chargeID))
	}
	return charge, nil
}

// ListCharges returns a lease's charges ordered by due date, then id.
func (s *LedgerService) ListCharges(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown charge status %q", *filter.Status))
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown charge type %q", *filter.Type))
	}
	if filter.DueFrom != nil && filter.DueTo != nil && filter.DueFrom.After(*filter.DueTo) {
		return nil, customError.WrapValidation("due_from must not be after due_to")
	}

	charges, err := s.store.Repos().Charges.ListByLease(ctx, leaseID, filter)
	if err != nil {
		return nil, dbErr(err)
	}
	return charges, nil
}

// VoidCharge removes a charge from balances for good. Paid amounts stay as they were.
func (s *LedgerService) VoidCharge(ctx context.Context, chargeID, reason, actorID string) (*domain.Charge, error) {
	var charge *domain.Charge
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		c, err := repos.Charges.GetByIDForUpdate(ctx, chargeID)
		if err != nil {
			return notFound(err, "Charge", chargeID)
		}
		if err := c.Void(reason, actorID, s.now()); err != nil {
			return err
		}
		if err := repos.Charges.Update(ctx, c); err != nil {
			return err
		}
		charge = c
		return nil
	})
	if err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("charge voided",
		zap.String("charge_id", charge.ID),
		zap.String("lease_id", charge.LeaseID),
		zap.String("actor_id", actorID),
	)
	s.publish(ctx, events.LedgerEvent{
		Type:    events.TypeChargeVoided,
		LLCID:   charge.LLCID,
		LeaseID: charge.LeaseID,
		ActorID: actorID,
		Data:    charge,
	})
	return charge, nil
}
