package domain

import (
	"time"

	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodMoneyOrder   PaymentMethod = "money_order"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodMoneyOrder,
		PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodOther:
		return true
	}
	return false
}

// PaymentStatus follows the external processor pipeline. Payments recorded
// by this ledger are always succeeded; refunded is terminal.
type PaymentStatus string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentStatusProcessing            PaymentStatus = "processing"
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusFailed                PaymentStatus = "failed"
	PaymentStatusCanceled              PaymentStatus = "canceled"
	PaymentStatusRefunded              PaymentStatus = "refunded"
)

// Payment is a receipt of money against a lease.
type Payment struct {
	ID                string        `json:"id" db:"id"`
	LLCID             string        `json:"llc_id" db:"llc_id"`
	LeaseID           string        `json:"lease_id" db:"lease_id"`
	TenantID          string        `json:"tenant_id" db:"tenant_id"`
	Amount            Money         `json:"amount" db:"amount"`
	Method            PaymentMethod `json:"method" db:"method"`
	Status            PaymentStatus `json:"status" db:"status"`
	Reference         *string       `json:"reference,omitempty" db:"reference"`
	Allocations       []Allocation  `json:"allocations" db:"-"`
	UnallocatedAmount Money         `json:"unallocated_amount" db:"unallocated_amount"`
	PaymentDate       time.Time     `json:"payment_date" db:"payment_date"`
	CreatedBy         string        `json:"created_by" db:"created_by"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	RefundedAt        *time.Time    `json:"refunded_at,omitempty" db:"refunded_at"`
}

// AllocatedAmount sums the allocations.
func (p *Payment) AllocatedAmount() Money {
	var total Money
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Balanced reports whether allocations plus the unallocated remainder
// account for the whole payment.
func (p *Payment) Balanced() bool {
	return p.AllocatedAmount().Add(p.UnallocatedAmount) == p.Amount
}

// Refund marks the payment refunded. Charges are not touched.
func (p *Payment) Refund(at time.Time) error {
	if p.Status != PaymentStatusSucceeded {
		return customError.WrapInvalidStatus("Payment", p.ID, string(p.Status))
	}
	refundedAt := at
	p.Status = PaymentStatusRefunded
	p.RefundedAt = &refundedAt
	return nil
}
