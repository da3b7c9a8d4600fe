package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

type FeeType string

const (
	FeeTypeFlat       FeeType = "flat"
	FeeTypePercentage FeeType = "percentage"
)

const MaxGraceDays = 30

// LateFeePolicy is the per-LLC late fee configuration. FeeAmount is whole
// cents for a flat fee and a percent of the charge amount for a percentage fee.
// MaxFeeAmount caps percentage fees only.
type LateFeePolicy struct {
	LLCID        string          `json:"llc_id" db:"llc_id"`
	Enabled      bool            `json:"enabled" db:"enabled"`
	FeeType      FeeType         `json:"fee_type" db:"fee_type"`
	FeeAmount    decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	MaxFeeAmount *Money          `json:"max_fee_amount,omitempty" db:"max_fee_amount"`
	GraceDays    int             `json:"grace_days" db:"grace_days"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// DisabledPolicy is what an LLC without a stored policy gets.
func DisabledPolicy(llcID string) *LateFeePolicy {
	return &LateFeePolicy{
		LLCID:     llcID,
		Enabled:   false,
		FeeType:   FeeTypeFlat,
		FeeAmount: decimal.Zero,
	}
}

func (p *LateFeePolicy) Validate() error {
	switch p.FeeType {
	case FeeTypeFlat:
		if !p.FeeAmount.IsInteger() {
			return customError.WrapValidation("flat fee amount must be whole cents")
		}
		if p.MaxFeeAmount != nil {
			return customError.WrapValidation("max fee amount applies to percentage fees only")
		}
	case FeeTypePercentage:
	default:
		return customError.WrapValidation(fmt.Sprintf("unknown fee type %q", p.FeeType))
	}
	if p.FeeAmount.IsNegative() {
		return customError.WrapValidation("fee amount must not be negative")
	}
	if p.MaxFeeAmount != nil && *p.MaxFeeAmount < 0 {
		return customError.WrapValidation("max fee amount must not be negative")
	}
	if p.GraceDays < 0 || p.GraceDays > MaxGraceDays {
		return customError.WrapValidation(fmt.Sprintf("grace days must be between 0 and %d", MaxGraceDays))
	}
	return nil
}

// ComputeLateFee returns the fee a late charge would incur under policy.
// Percentage fees round half-up to the cent before the cap is applied.
func ComputeLateFee(charge *Charge, policy *LateFeePolicy) Money {
	switch policy.FeeType {
	case FeeTypeFlat:
		return Money(policy.FeeAmount.IntPart())
	case FeeTypePercentage:
		fee := Money(utils.PercentOf(charge.Amount.Cents(), policy.FeeAmount))
		if policy.MaxFeeAmount != nil {
			fee = MinMoney(fee, *policy.MaxFeeAmount)
		}
		return fee
	}
	return 0
}
