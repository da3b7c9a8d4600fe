package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/rental-ledger/internal/domain"
)

const paymentColumns = `id, llc_id, lease_id, tenant_id, amount, method, status, reference,
	unallocated_amount, payment_date, created_by, created_at, refunded_at`

type paymentRepository struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db sqlx.ExtContext) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create must run inside a transaction so the payment and its allocation
// rows land together.
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.LLCID,
		payment.LeaseID,
		payment.TenantID,
		payment.Amount,
		payment.Method,
		payment.Status,
		payment.Reference,
		payment.UnallocatedAmount,
		payment.PaymentDate,
		payment.CreatedBy,
		payment.CreatedAt,
		payment.RefundedAt,
	)
	if err != nil {
		return err
	}

	allocationQuery := `
		INSERT INTO payment_allocations (payment_id, position, charge_id, amount)
		VALUES ($1, $2, $3, $4)
	`
	for i, allocation := range payment.Allocations {
		if _, err := r.db.ExecContext(ctx, allocationQuery, payment.ID, i, allocation.ChargeID, allocation.Amount); err != nil {
			return err
		}
	}

	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *paymentRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *paymentRepository) get(ctx context.Context, query string, id string) (*domain.Payment, error) {
	var payment domain.Payment
	if err := sqlx.GetContext(ctx, r.db, &payment, query, id); err != nil {
		return nil, err
	}

	if err := r.loadAllocations(ctx, []*domain.Payment{&payment}); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) ListByLease(ctx context.Context, leaseID string) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE lease_id = $1
		ORDER BY payment_date DESC, created_at DESC, id DESC
	`

	payments := []*domain.Payment{}
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, leaseID); err != nil {
		return nil, err
	}

	if err := r.loadAllocations(ctx, payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, refunded_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, payment.ID, payment.Status, payment.RefundedAt)
	return err
}

type allocationRow struct {
	PaymentID string       `db:"payment_id"`
	ChargeID  string       `db:"charge_id"`
	Amount    domain.Money `db:"amount"`
}

func (r *paymentRepository) loadAllocations(ctx context.Context, payments []*domain.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	ids := make([]string, 0, len(payments))
	byID := make(map[string]*domain.Payment, len(payments))
	for _, p := range payments {
		p.Allocations = []domain.Allocation{}
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	query := `
		SELECT payment_id, charge_id, amount
		FROM payment_allocations
		WHERE payment_id = ANY($1)
		ORDER BY payment_id, position
	`

	var rows []allocationRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(ids)); err != nil {
		return err
	}

	for _, row := range rows {
		p := byID[row.PaymentID]
		p.Allocations = append(p.Allocations, domain.Allocation{ChargeID: row.ChargeID, Amount: row.Amount})
	}
	return nil
}
