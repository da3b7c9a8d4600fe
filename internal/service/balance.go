package service

import (
	"context"

	"github.com/segyhp/rental-ledger/internal/domain"
)

// GetChargeBalance summarizes a lease from committed state. Nothing is cached.
func (s *LedgerService) GetChargeBalance(ctx context.Context, leaseID string) (*domain.BalanceSummary, error) {
	repos := s.store.Repos()

	charges, err := repos.Charges.ListByLease(ctx, leaseID, domain.ChargeFilter{})
	if err != nil {
		return nil, dbErr(err)
	}
	payments, err := repos.Payments.ListByLease(ctx, leaseID)
	if err != nil {
		return nil, dbErr(err)
	}

	summary := domain.SummarizeBalance(leaseID, charges, payments, s.today())
	return &summary, nil
}
