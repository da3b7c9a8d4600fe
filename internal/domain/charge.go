package domain

import (
	"fmt"
	"strings"
	"time"

	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

type ChargeType string

const (
	ChargeTypeRent       ChargeType = "rent"
	ChargeTypeLateFee    ChargeType = "late_fee"
	ChargeTypeUtility    ChargeType = "utility"
	ChargeTypeDeposit    ChargeType = "deposit"
	ChargeTypePetDeposit ChargeType = "pet_deposit"
	ChargeTypePetRent    ChargeType = "pet_rent"
	ChargeTypeParking    ChargeType = "parking"
	ChargeTypeDamage     ChargeType = "damage"
	ChargeTypeOther      ChargeType = "other"
)

var chargeTypes = map[ChargeType]bool{
	ChargeTypeRent:       true,
	ChargeTypeLateFee:    true,
	ChargeTypeUtility:    true,
	ChargeTypeDeposit:    true,
	ChargeTypePetDeposit: true,
	ChargeTypePetRent:    true,
	ChargeTypeParking:    true,
	ChargeTypeDamage:     true,
	ChargeTypeOther:      true,
}

func (t ChargeType) Valid() bool {
	return chargeTypes[t]
}

// Only rent-class recurring charges can generate a late fee.
var lateFeeEligibleTypes = []ChargeType{ChargeTypeRent, ChargeTypePetRent}

// LateFeeEligibleTypes lists the charge types a late fee may be generated from.
func LateFeeEligibleTypes() []ChargeType {
	out := make([]ChargeType, len(lateFeeEligibleTypes))
	copy(out, lateFeeEligibleTypes)
	return out
}

func (t ChargeType) LateFeeEligible() bool {
	for _, eligible := range lateFeeEligibleTypes {
		if t == eligible {
			return true
		}
	}
	return false
}

type ChargeStatus string

const (
	ChargeStatusOpen    ChargeStatus = "open"
	ChargeStatusPartial ChargeStatus = "partial"
	ChargeStatusPaid    ChargeStatus = "paid"
	ChargeStatusVoid    ChargeStatus = "void"
)

func (s ChargeStatus) Valid() bool {
	switch s {
	case ChargeStatusOpen, ChargeStatusPartial, ChargeStatusPaid, ChargeStatusVoid:
		return true
	}
	return false
}

// DeriveStatus is the only place a charge status is decided.
func DeriveStatus(amount, paidAmount Money, voided bool) ChargeStatus {
	switch {
	case voided:
		return ChargeStatusVoid
	case paidAmount == 0:
		return ChargeStatusOpen
	case paidAmount < amount:
		return ChargeStatusPartial
	default:
		return ChargeStatusPaid
	}
}

// Charge represents a billable obligation against a lease
type Charge struct {
	ID                     string       `json:"id" db:"id"`
	LLCID                  string       `json:"llc_id" db:"llc_id"`
	LeaseID                string       `json:"lease_id" db:"lease_id"`
	Period                 string       `json:"period" db:"period"`
	Type                   ChargeType   `json:"type" db:"type"`
	Amount                 Money        `json:"amount" db:"amount"`
	PaidAmount             Money        `json:"paid_amount" db:"paid_amount"`
	DueDate                time.Time    `json:"due_date" db:"due_date"`
	Status                 ChargeStatus `json:"status" db:"status"`
	Description            *string      `json:"description,omitempty" db:"description"`
	LateFeeAppliedChargeID *string      `json:"late_fee_applied_charge_id,omitempty" db:"late_fee_applied_charge_id"`
	SourceChargeID         *string      `json:"source_charge_id,omitempty" db:"source_charge_id"`
	VoidReason             *string      `json:"void_reason,omitempty" db:"void_reason"`
	VoidedAt               *time.Time   `json:"voided_at,omitempty" db:"voided_at"`
	VoidedBy               *string      `json:"voided_by,omitempty" db:"voided_by"`
	CreatedBy              string       `json:"created_by" db:"created_by"`
	CreatedAt              time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at" db:"updated_at"`
	Version                int64        `json:"-" db:"version"`
}

// NewChargeParams carries the inputs for a fresh charge.
type NewChargeParams struct {
	ID          string
	Lease       *Lease
	Period      string
	Type        ChargeType
	Amount      Money
	DueDate     time.Time
	Description string
	CreatedBy   string
	Now         time.Time
}

// NewCharge validates params and builds an open charge.
func NewCharge(p NewChargeParams) (*Charge, error) {
	if p.Lease == nil {
		return nil, customError.WrapValidation("lease is required")
	}
	if !p.Amount.IsPositive() {
		return nil, customError.WrapValidation(fmt.Sprintf("charge amount must be positive, got %d", p.Amount))
	}
	if !p.Type.Valid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown charge type %q", p.Type))
	}
	if p.DueDate.IsZero() {
		return nil, customError.WrapValidation("due date is required")
	}
	if p.Period == "" {
		p.Period = utils.PeriodOf(p.DueDate)
	}
	if err := utils.ValidatePeriod(p.Period); err != nil {
		return nil, customError.WrapValidation(err.Error())
	}

	c := &Charge{
		ID:         p.ID,
		LLCID:      p.Lease.LLCID,
		LeaseID:    p.Lease.ID,
		Period:     p.Period,
		Type:       p.Type,
		Amount:     p.Amount,
		PaidAmount: 0,
		DueDate:    utils.DateOnly(p.DueDate),
		CreatedBy:  p.CreatedBy,
		CreatedAt:  p.Now,
		UpdatedAt:  p.Now,
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		c.Description = &d
	}
	c.refreshStatus()
	return c, nil
}

// Voided is the tag the status derivation keys on.
func (c *Charge) Voided() bool {
	return c.VoidedAt != nil
}

// IsOpen reports whether the charge can still absorb payments.
func (c *Charge) IsOpen() bool {
	return c.Status == ChargeStatusOpen || c.Status == ChargeStatusPartial
}

// Remaining is the unpaid part of the charge.
func (c *Charge) Remaining() Money {
	return c.Amount.Sub(c.PaidAmount)
}

func (c *Charge) refreshStatus() {
	c.Status = DeriveStatus(c.Amount, c.PaidAmount, c.Voided())
}

// ApplyPayment adds amount to the paid total and re-derives the status.
func (c *Charge) ApplyPayment(amount Money, at time.Time) error {
	if !amount.IsPositive() {
		return customError.WrapInvalidChargeAllocation(c.ID, "allocation amount must be positive")
	}
	if !c.IsOpen() {
		return customError.WrapInvalidChargeAllocation(c.ID, fmt.Sprintf("status %s cannot accept payments", c.Status))
	}
	if amount > c.Remaining() {
		return customError.WrapInvalidChargeAllocation(c.ID,
			fmt.Sprintf("allocation %s exceeds remaining %s", amount, c.Remaining()))
	}

	c.PaidAmount = c.PaidAmount.Add(amount)
	c.UpdatedAt = at
	c.refreshStatus()
	return nil
}

// Void permanently removes the charge from balances. The paid amount is frozen.
func (c *Charge) Void(reason, actor string, at time.Time) error {
	reason = strings.TrimSpace(reason)
	if c.Voided() {
		return customError.WrapAlreadyVoid(c.ID)
	}
	if c.Status == ChargeStatusPaid {
		return customError.WrapInvalidStatus("Charge", c.ID, string(c.Status))
	}
	if reason == "" {
		return customError.WrapValidation("void reason is required")
	}

	voidedAt := at
	c.VoidedAt = &voidedAt
	c.VoidReason = &reason
	if actor != "" {
		c.VoidedBy = &actor
	}
	c.UpdatedAt = at
	c.refreshStatus()
	return nil
}

// LateFeeEligibleOn is the first day a late fee may be applied.
func (c *Charge) LateFeeEligibleOn(graceDays int) time.Time {
	return utils.AddDays(c.DueDate, graceDays)
}

// LinkLateFee records the late-fee charge generated from this charge.
func (c *Charge) LinkLateFee(lateFeeChargeID string, at time.Time) error {
	if c.LateFeeAppliedChargeID != nil {
		return customError.WrapAlreadyApplied(c.ID, *c.LateFeeAppliedChargeID)
	}
	id := lateFeeChargeID
	c.LateFeeAppliedChargeID = &id
	c.UpdatedAt = at
	return nil
}

// ChargeCursor is a position in due date, then id order. Late fee sweeps page
// with it.
type ChargeCursor struct {
	DueDate time.Time
	ID      string
}

func CursorOf(c *Charge) *ChargeCursor {
	return &ChargeCursor{DueDate: c.DueDate, ID: c.ID}
}

// Precedes reports whether c sorts strictly after the cursor.
func (cur *ChargeCursor) Precedes(c *Charge) bool {
	if cur == nil {
		return true
	}
	if !c.DueDate.Equal(cur.DueDate) {
		return c.DueDate.After(cur.DueDate)
	}
	return c.ID > cur.ID
}

// ChargeFilter narrows ListCharges. Nil fields match everything.
type ChargeFilter struct {
	Status  *ChargeStatus
	Type    *ChargeType
	DueFrom *time.Time
	DueTo   *time.Time
}

// Matches applies the filter in memory. DueFrom and DueTo are inclusive.
func (f ChargeFilter) Matches(c *Charge) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.DueFrom != nil && c.DueDate.Before(utils.DateOnly(*f.DueFrom)) {
		return false
	}
	if f.DueTo != nil && c.DueDate.After(utils.DateOnly(*f.DueTo)) {
		return false
	}
	return true
}
