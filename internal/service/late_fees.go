package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/repository"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

// ApplyLateFee materializes the late fee of a charge as a new late_fee charge
// and links it back to the source in the same transaction. Eligibility checks
// run in a fixed order and the first failure is returned.
func (s *LedgerService) ApplyLateFee(ctx context.Context, chargeID, actorID string) (*domain.Charge, error) {
	var feeCharge *domain.Charge
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		charge, err := repos.Charges.GetByIDForUpdate(ctx, chargeID)
		if err != nil {
			return notFound(err, "Charge", chargeID)
		}

		policy, err := loadPolicy(ctx, repos, charge.LLCID)
		if err != nil {
			return err
		}
		if !policy.Enabled {
			return customError.WrapLateFeeDisabled(charge.LLCID)
		}
		if !charge.Type.LateFeeEligible() {
			return customError.WrapInvalidType(charge.ID, string(charge.Type))
		}
		if !charge.IsOpen() {
			return customError.WrapInvalidStatus("Charge", charge.ID, string(charge.Status))
		}
		if charge.LateFeeAppliedChargeID != nil {
			return customError.WrapAlreadyApplied(charge.ID, *charge.LateFeeAppliedChargeID)
		}

		today := s.today()
		eligibleOn := charge.LateFeeEligibleOn(policy.GraceDays)
		if today.Before(eligibleOn) {
			return customError.WrapGracePeriod(charge.ID, utils.FormatDate(eligibleOn))
		}

		fee := domain.ComputeLateFee(charge, policy)
		if !fee.IsPositive() {
			return customError.WrapZeroFee(charge.ID)
		}

		now := s.now()
		fc, err := domain.NewCharge(domain.NewChargeParams{
			ID:          uuid.NewString(),
			Lease:       &domain.Lease{ID: charge.LeaseID, LLCID: charge.LLCID},
			Period:      charge.Period,
			Type:        domain.ChargeTypeLateFee,
			Amount:      fee,
			DueDate:     today,
			Description: fmt.Sprintf("Late fee for %s %s", charge.Type, charge.Period),
			CreatedBy:   actorID,
			Now:         now,
		})
		if err != nil {
			return err
		}
		sourceID := charge.ID
		fc.SourceChargeID = &sourceID

		if err := repos.Charges.Create(ctx, fc); err != nil {
			return err
		}
		if err := charge.LinkLateFee(fc.ID, now); err != nil {
			return err
		}
		if err := repos.Charges.Update(ctx, charge); err != nil {
			return err
		}
		feeCharge = fc
		return nil
	})
	if err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("late fee applied",
		zap.String("charge_id", chargeID),
		zap.String("late_fee_charge_id", feeCharge.ID),
		zap.Int64("amount", feeCharge.Amount.Cents()),
	)
	s.publish(ctx, events.LedgerEvent{
		Type:    events.TypeLateFeeApplied,
		LLCID:   feeCharge.LLCID,
		LeaseID: feeCharge.LeaseID,
		ActorID: actorID,
		Data:    feeCharge,
	})
	return feeCharge, nil
}

// ListLateFeeCandidates pages through charges a late fee may be applied to as
// of asOf, in due date order after the cursor. ApplyLateFee still decides
// whether each one actually gets a fee.
func (s *LedgerService) ListLateFeeCandidates(ctx context.Context, asOf time.Time, after *domain.ChargeCursor, limit int) ([]*domain.Charge, error) {
	charges, err := s.store.Repos().Charges.ListLateFeeCandidates(ctx, utils.DateOnly(asOf), after, limit)
	if err != nil {
		return nil, dbErr(err)
	}
	return charges, nil
}

// Today is the ledger's current calendar date.
func (s *LedgerService) Today() time.Time {
	return s.today()
}

// GetLateFeePolicy returns the LLC's policy, or a disabled one if none is stored.
func (s *LedgerService) GetLateFeePolicy(ctx context.Context, llcID string) (*domain.LateFeePolicy, error) {
	policy, err := loadPolicy(ctx, s.store.Repos(), llcID)
	if err != nil {
		return nil, dbErr(err)
	}
	return policy, nil
}

func (s *LedgerService) PutLateFeePolicy(ctx context.Context, policy *domain.LateFeePolicy) (*domain.LateFeePolicy, error) {
	if policy.LLCID == "" {
		return nil, customError.WrapValidation("llc id is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy.UpdatedAt = s.now()
	if err := s.store.Repos().Policies.Upsert(ctx, policy); err != nil {
		return nil, dbErr(err)
	}

	s.logger.Info("late fee policy updated",
		zap.String("llc_id", policy.LLCID),
		zap.Bool("enabled", policy.Enabled),
		zap.String("fee_type", string(policy.FeeType)),
	)
	return policy, nil
}

func loadPolicy(ctx context.Context, repos repository.Repositories, llcID string) (*domain.LateFeePolicy, error) {
	policy, err := repos.Policies.GetByLLC(ctx, llcID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DisabledPolicy(llcID), nil
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}
