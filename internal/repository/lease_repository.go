package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-ledger/internal/domain"
)

type leaseRepository struct {
	db sqlx.ExtContext
}

func NewLeaseRepository(db sqlx.ExtContext) LeaseRepository {
	return &leaseRepository{db: db}
}

func (r *leaseRepository) GetByID(ctx context.Context, id string) (*domain.Lease, error) {
	query := `
		SELECT id, llc_id, tenant_id, status, created_at
		FROM leases
		WHERE id = $1
	`

	var lease domain.Lease
	if err := sqlx.GetContext(ctx, r.db, &lease, query, id); err != nil {
		return nil, err
	}
	return &lease, nil
}
