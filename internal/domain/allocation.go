package domain

import (
	"fmt"
	"sort"

	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

// Allocation is the portion of a payment applied to one charge.
type Allocation struct {
	ChargeID string `json:"charge_id" db:"charge_id"`
	Amount   Money  `json:"amount" db:"amount"`
}

// AllocationPlan is the outcome of distributing a payment.
type AllocationPlan struct {
	Allocations []Allocation
	Allocated   Money
	Unallocated Money
}

// SortChargesByDueDate orders charges by due date, ties broken by id.
func SortChargesByDueDate(charges []*Charge) {
	sort.SliceStable(charges, func(i, j int) bool {
		if !charges[i].DueDate.Equal(charges[j].DueDate) {
			return charges[i].DueDate.Before(charges[j].DueDate)
		}
		return charges[i].ID < charges[j].ID
	})
}

// AllocateFIFO spreads amount over the open charges, oldest due date first.
// Whatever cannot be absorbed is reported as Unallocated.
func AllocateFIFO(amount Money, charges []*Charge) AllocationPlan {
	open := make([]*Charge, 0, len(charges))
	for _, c := range charges {
		if c.IsOpen() && c.Remaining() > 0 {
			open = append(open, c)
		}
	}
	SortChargesByDueDate(open)

	plan := AllocationPlan{Allocations: []Allocation{}}
	remaining := amount
	for _, c := range open {
		if remaining <= 0 {
			break
		}
		applied := MinMoney(remaining, c.Remaining())
		plan.Allocations = append(plan.Allocations, Allocation{ChargeID: c.ID, Amount: applied})
		plan.Allocated = plan.Allocated.Add(applied)
		remaining = remaining.Sub(applied)
	}
	plan.Unallocated = remaining
	return plan
}

// ValidateAllocations checks caller-supplied allocations against the payment
// amount and the target charges, keyed by id. It never adjusts the input.
func ValidateAllocations(amount Money, leaseID string, requested []Allocation, charges map[string]*Charge) (AllocationPlan, error) {
	if len(requested) == 0 {
		return AllocationPlan{}, customError.WrapInvalidAllocation("allocations must not be empty when supplied")
	}

	var total Money
	seen := make(map[string]bool, len(requested))
	for _, a := range requested {
		if !a.Amount.IsPositive() {
			return AllocationPlan{}, customError.WrapInvalidChargeAllocation(a.ChargeID, "allocation amount must be positive")
		}
		if seen[a.ChargeID] {
			return AllocationPlan{}, customError.WrapInvalidChargeAllocation(a.ChargeID, "charge appears more than once")
		}
		seen[a.ChargeID] = true
		total = total.Add(a.Amount)
	}
	if total != amount {
		return AllocationPlan{}, customError.WrapInvalidAllocation(
			fmt.Sprintf("allocations total %s does not match payment amount %s", total, amount))
	}

	for _, a := range requested {
		c, ok := charges[a.ChargeID]
		if !ok || c.LeaseID != leaseID {
			return AllocationPlan{}, customError.WrapInvalidChargeAllocation(a.ChargeID, "charge not found on lease "+leaseID)
		}
		if !c.IsOpen() {
			return AllocationPlan{}, customError.WrapInvalidChargeAllocation(a.ChargeID,
				fmt.Sprintf("status %s cannot accept payments", c.Status))
		}
		if c.Remaining() < a.Amount {
			return AllocationPlan{}, customError.WrapInvalidChargeAllocation(a.ChargeID,
				fmt.Sprintf("allocation %s exceeds remaining %s", a.Amount, c.Remaining()))
		}
	}

	allocations := make([]Allocation, len(requested))
	copy(allocations, requested)
	return AllocationPlan{Allocations: allocations, Allocated: total}, nil
}
