package domain

import (
	"time"

	"github.com/segyhp/rental-ledger/pkg/utils"
)

// BalanceSummary is the read model for one lease.
type BalanceSummary struct {
	LeaseID         string    `json:"lease_id"`
	TotalCharges    Money     `json:"total_charges"`
	TotalPaid       Money     `json:"total_paid"`
	Balance         Money     `json:"balance"`
	OverdueAmount   Money     `json:"overdue_amount"`
	OpenCharges     int       `json:"open_charges"`
	UnappliedCredit Money     `json:"unapplied_credit"`
	AsOf            time.Time `json:"as_of"`
}

// SummarizeBalance folds a lease's charges and payments into a summary.
// Void charges and refunded payments contribute nothing.
func SummarizeBalance(leaseID string, charges []*Charge, payments []*Payment, today time.Time) BalanceSummary {
	summary := BalanceSummary{LeaseID: leaseID, AsOf: utils.DateOnly(today)}

	for _, c := range charges {
		if c.Status == ChargeStatusVoid {
			continue
		}
		summary.TotalCharges = summary.TotalCharges.Add(c.Amount)
		summary.TotalPaid = summary.TotalPaid.Add(c.PaidAmount)
		if c.IsOpen() {
			summary.OpenCharges++
		}
		if c.Status != ChargeStatusPaid && utils.IsDateOverdue(c.DueDate, today) {
			summary.OverdueAmount = summary.OverdueAmount.Add(c.Remaining())
		}
	}
	summary.Balance = summary.TotalCharges.Sub(summary.TotalPaid)

	for _, p := range payments {
		if p.Status == PaymentStatusRefunded {
			continue
		}
		summary.UnappliedCredit = summary.UnappliedCredit.Add(p.UnallocatedAmount)
	}

	return summary
}
