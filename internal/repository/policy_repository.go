package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/rental-ledger/internal/domain"
)

type lateFeePolicyRepository struct {
	db sqlx.ExtContext
}

func NewLateFeePolicyRepository(db sqlx.ExtContext) LateFeePolicyRepository {
	return &lateFeePolicyRepository{db: db}
}

func (r *lateFeePolicyRepository) GetByLLC(ctx context.Context, llcID string) (*domain.LateFeePolicy, error) {
	query := `
		SELECT llc_id, enabled, fee_type, fee_amount, max_fee_amount, grace_days, updated_at
		FROM late_fee_policies
		WHERE llc_id = $1
	`

	var policy domain.LateFeePolicy
	if err := sqlx.GetContext(ctx, r.db, &policy, query, llcID); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *lateFeePolicyRepository) Upsert(ctx context.Context, policy *domain.LateFeePolicy) error {
	query := `
		INSERT INTO late_fee_policies (llc_id, enabled, fee_type, fee_amount, max_fee_amount, grace_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (llc_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			fee_type = EXCLUDED.fee_type,
			fee_amount = EXCLUDED.fee_amount,
			max_fee_amount = EXCLUDED.max_fee_amount,
			grace_days = EXCLUDED.grace_days,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		policy.LLCID,
		policy.Enabled,
		policy.FeeType,
		policy.FeeAmount,
		policy.MaxFeeAmount,
		policy.GraceDays,
		policy.UpdatedAt,
	)
	return err
}
