package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/rental-ledger/internal/domain"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

const chargeColumns = `id, llc_id, lease_id, period, type, amount, paid_amount, due_date, status,
	description, late_fee_applied_charge_id, source_charge_id, void_reason, voided_at, voided_by,
	created_by, created_at, updated_at, version`

type chargeRepository struct {
	db sqlx.ExtContext
}

func NewChargeRepository(db sqlx.ExtContext) ChargeRepository {
	return &chargeRepository{db: db}
}

func (r *chargeRepository) Create(ctx context.Context, charge *domain.Charge) error {
	query := `
		INSERT INTO charges (` + chargeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.db.ExecContext(ctx, query,
		charge.ID,
		charge.LLCID,
		charge.LeaseID,
		charge.Period,
		charge.Type,
		charge.Amount,
		charge.PaidAmount,
		charge.DueDate,
		charge.Status,
		charge.Description,
		charge.LateFeeAppliedChargeID,
		charge.SourceChargeID,
		charge.VoidReason,
		charge.VoidedAt,
		charge.VoidedBy,
		charge.CreatedBy,
		charge.CreatedAt,
		charge.UpdatedAt,
		charge.Version,
	)

	return err
}

func (r *chargeRepository) GetByID(ctx context.Context, id string) (*domain.Charge, error) {
	return r.get(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1`, id)
}

func (r *chargeRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Charge, error) {
	return r.get(ctx, `SELECT `+chargeColumns+` FROM charges WHERE id = $1 FOR UPDATE`, id)
}

func (r *chargeRepository) get(ctx context.Context, query string, args ...interface{}) (*domain.Charge, error) {
	var charge domain.Charge
	if err := sqlx.GetContext(ctx, r.db, &charge, query, args...); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *chargeRepository) GetByIDsForUpdate(ctx context.Context, ids []string) ([]*domain.Charge, error) {
	query := `
		SELECT ` + chargeColumns + `
		FROM charges
		WHERE id = ANY($1)
		ORDER BY due_date, id
		FOR UPDATE
	`

	charges := []*domain.Charge{}
	if err := sqlx.SelectContext(ctx, r.db, &charges, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *chargeRepository) ListByLease(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error) {
	conditions := []string{"lease_id = $1"}
	args := []interface{}{leaseID}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.Type != nil {
		add("type = $%d", *filter.Type)
	}
	if filter.DueFrom != nil {
		add("due_date >= $%d", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		add("due_date <= $%d", *filter.DueTo)
	}

	query := `SELECT ` + chargeColumns + ` FROM charges WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY due_date, id`

	charges := []*domain.Charge{}
	if err := sqlx.SelectContext(ctx, r.db, &charges, query, args...); err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *chargeRepository) ListOpenByLeaseForUpdate(ctx context.Context, leaseID string) ([]*domain.Charge, error) {
	query := `
		SELECT ` + chargeColumns + `
		FROM charges
		WHERE lease_id = $1 AND status IN ('open', 'partial')
		ORDER BY due_date, id
		FOR UPDATE
	`

	charges := []*domain.Charge{}
	if err := sqlx.SelectContext(ctx, r.db, &charges, query, leaseID); err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *chargeRepository) Update(ctx context.Context, charge *domain.Charge) error {
	query := `
		UPDATE charges
		SET paid_amount = $3, status = $4, late_fee_applied_charge_id = $5,
			void_reason = $6, voided_at = $7, voided_by = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
	`

	res, err := r.db.ExecContext(ctx, query,
		charge.ID,
		charge.Version,
		charge.PaidAmount,
		charge.Status,
		charge.LateFeeAppliedChargeID,
		charge.VoidReason,
		charge.VoidedAt,
		charge.VoidedBy,
		charge.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("charge %s version %d: %w", charge.ID, charge.Version, customError.ErrConcurrentUpdate)
	}

	charge.Version++
	return nil
}

func (r *chargeRepository) ListLateFeeCandidates(ctx context.Context, asOf time.Time, after *domain.ChargeCursor, limit int) ([]*domain.Charge, error) {
	query := `
		SELECT ` + chargeColumns + `
		FROM charges
		WHERE status IN ('open', 'partial')
			AND type = ANY($1)
			AND late_fee_applied_charge_id IS NULL
			AND EXISTS (
				SELECT 1 FROM late_fee_policies p
				WHERE p.llc_id = charges.llc_id
					AND p.enabled
					AND p.fee_amount > 0
					AND charges.due_date + p.grace_days <= $2::date
			)
			AND ($3::date IS NULL OR (due_date, id) > ($3::date, $4))
		ORDER BY due_date, id
		LIMIT $5
	`

	eligible := domain.LateFeeEligibleTypes()
	types := make([]string, 0, len(eligible))
	for _, t := range eligible {
		types = append(types, string(t))
	}

	var afterDue interface{}
	var afterID string
	if after != nil {
		afterDue = after.DueDate
		afterID = after.ID
	}

	charges := []*domain.Charge{}
	if err := sqlx.SelectContext(ctx, r.db, &charges, query, pq.Array(types), asOf, afterDue, afterID, limit); err != nil {
		return nil, err
	}
	return charges, nil
}
