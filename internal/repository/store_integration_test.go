//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/repository"
	"github.com/segyhp/rental-ledger/internal/repository/migrations"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		// Nothing to run against.
		os.Exit(0)
	}

	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		panic("connect test database: " + err.Error())
	}
	if _, err := migrations.Apply(context.Background(), db); err != nil {
		panic("migrate test database: " + err.Error())
	}
	testDB = db

	code := m.Run()
	db.Close()
	os.Exit(code)
}

func setupStore(t *testing.T) (*repository.PostgresStore, *domain.Lease) {
	t.Helper()
	cleanupTestData(t)

	lease := &domain.Lease{ID: "lease-" + uuid.NewString(), LLCID: "llc-1", TenantID: "tenant-1", Status: domain.LeaseStatusActive}
	_, err := testDB.Exec(`INSERT INTO leases (id, llc_id, tenant_id, status) VALUES ($1, $2, $3, $4)`,
		lease.ID, lease.LLCID, lease.TenantID, lease.Status)
	require.NoError(t, err)

	return repository.NewPostgresStore(testDB, repository.DefaultMaxRetries), lease
}

func cleanupTestData(t *testing.T) {
	for _, stmt := range []string{
		`DELETE FROM payment_allocations`,
		`DELETE FROM payments`,
		`UPDATE charges SET late_fee_applied_charge_id = NULL`,
		`DELETE FROM charges WHERE source_charge_id IS NOT NULL`,
		`DELETE FROM charges`,
		`DELETE FROM late_fee_policies`,
		`DELETE FROM leases`,
	} {
		_, err := testDB.Exec(stmt)
		require.NoError(t, err)
	}
}

func newCharge(t *testing.T, lease *domain.Lease, typ domain.ChargeType, amount domain.Money, due string) *domain.Charge {
	t.Helper()
	dueDate, err := time.Parse("2006-01-02", due)
	require.NoError(t, err)

	c, err := domain.NewCharge(domain.NewChargeParams{
		ID:        uuid.NewString(),
		Lease:     lease,
		Period:    dueDate.Format("2006-01"),
		Type:      typ,
		Amount:    amount,
		DueDate:   dueDate,
		CreatedBy: "manager-1",
		Now:       time.Now().UTC(),
	})
	require.NoError(t, err)
	return c
}

func TestLeaseRepository_GetByID(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()

	got, err := store.Repos().Leases.GetByID(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, lease.LLCID, got.LLCID)

	_, err = store.Repos().Leases.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestChargeRepository_CreateAndList(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()

	later := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-02-01")
	earlier := newCharge(t, lease, domain.ChargeTypeUtility, 5000, "2024-01-15")
	require.NoError(t, repos.Charges.Create(ctx, later))
	require.NoError(t, repos.Charges.Create(ctx, earlier))

	got, err := repos.Charges.GetByID(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(150000), got.Amount)
	assert.Equal(t, domain.ChargeStatusOpen, got.Status)
	assert.Equal(t, "2024-02-01", got.DueDate.Format("2006-01-02"))

	all, err := repos.Charges.ListByLease(ctx, lease.ID, domain.ChargeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, earlier.ID, all[0].ID)

	rent := domain.ChargeTypeRent
	filtered, err := repos.Charges.ListByLease(ctx, lease.ID, domain.ChargeFilter{Type: &rent})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, later.ID, filtered[0].ID)

	_, err = repos.Charges.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestChargeRepository_UpdateDetectsStaleVersion(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()

	c := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-01-01")
	require.NoError(t, repos.Charges.Create(ctx, c))

	first, err := repos.Charges.GetByID(ctx, c.ID)
	require.NoError(t, err)
	second, err := repos.Charges.GetByID(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, first.ApplyPayment(50000, time.Now().UTC()))
	require.NoError(t, repos.Charges.Update(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	require.NoError(t, second.ApplyPayment(10000, time.Now().UTC()))
	err = repos.Charges.Update(ctx, second)
	assert.ErrorIs(t, err, customError.ErrConcurrentUpdate)
	assert.True(t, repository.IsContentionError(err))

	stored, err := repos.Charges.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(50000), stored.PaidAmount)
	assert.Equal(t, domain.ChargeStatusPartial, stored.Status)
}

func TestChargeRepository_OneLateFeePerSource(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()

	source := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-01-01")
	require.NoError(t, repos.Charges.Create(ctx, source))

	fee := newCharge(t, lease, domain.ChargeTypeLateFee, 5000, "2024-01-10")
	fee.SourceChargeID = &source.ID
	require.NoError(t, repos.Charges.Create(ctx, fee))

	dup := newCharge(t, lease, domain.ChargeTypeLateFee, 5000, "2024-01-10")
	dup.SourceChargeID = &source.ID
	err := repos.Charges.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, repository.IsContentionError(err))
}

func TestChargeRepository_ListLateFeeCandidates(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()
	require.NoError(t, repos.Policies.Upsert(ctx, &domain.LateFeePolicy{
		LLCID: lease.LLCID, Enabled: true, FeeType: domain.FeeTypeFlat,
		FeeAmount: decimal.NewFromInt(5000), GraceDays: 5, UpdatedAt: time.Now().UTC(),
	}))

	noPolicy := &domain.Lease{ID: "lease-" + uuid.NewString(), LLCID: "llc-2", TenantID: "tenant-2", Status: domain.LeaseStatusActive}
	_, err := testDB.Exec(`INSERT INTO leases (id, llc_id, tenant_id, status) VALUES ($1, $2, $3, $4)`,
		noPolicy.ID, noPolicy.LLCID, noPolicy.TenantID, noPolicy.Status)
	require.NoError(t, err)

	overdue := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-01-01")
	overdue2 := newCharge(t, lease, domain.ChargeTypePetRent, 5000, "2024-01-01")
	inGrace := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-01-29")
	future := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-03-01")
	utility := newCharge(t, lease, domain.ChargeTypeUtility, 5000, "2024-01-01")
	otherLLC := newCharge(t, noPolicy, domain.ChargeTypeRent, 150000, "2023-12-01")
	for _, c := range []*domain.Charge{overdue, overdue2, inGrace, future, utility, otherLLC} {
		require.NoError(t, repos.Charges.Create(ctx, c))
	}

	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := repos.Charges.ListLateFeeCandidates(ctx, cutoff, nil, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	rest, err := repos.Charges.ListLateFeeCandidates(ctx, cutoff, domain.CursorOf(first[0]), 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	assert.ElementsMatch(t, []string{overdue.ID, overdue2.ID}, []string{first[0].ID, rest[0].ID})
}

func TestPaymentRepository_CreateWithAllocations(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()

	a := newCharge(t, lease, domain.ChargeTypeRent, 60000, "2024-01-01")
	b := newCharge(t, lease, domain.ChargeTypeRent, 70000, "2024-02-01")
	require.NoError(t, repos.Charges.Create(ctx, a))
	require.NoError(t, repos.Charges.Create(ctx, b))

	now := time.Now().UTC()
	older := &domain.Payment{
		ID: uuid.NewString(), LLCID: lease.LLCID, LeaseID: lease.ID, TenantID: lease.TenantID,
		Amount: 100000, Method: domain.PaymentMethodCheck, Status: domain.PaymentStatusSucceeded,
		Allocations: []domain.Allocation{{ChargeID: a.ID, Amount: 60000}, {ChargeID: b.ID, Amount: 40000}},
		PaymentDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), CreatedBy: "manager-1", CreatedAt: now,
	}
	newer := &domain.Payment{
		ID: uuid.NewString(), LLCID: lease.LLCID, LeaseID: lease.ID, TenantID: lease.TenantID,
		Amount: 500, Method: domain.PaymentMethodCash, Status: domain.PaymentStatusSucceeded,
		Allocations: []domain.Allocation{}, UnallocatedAmount: 500,
		PaymentDate: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), CreatedBy: "manager-1", CreatedAt: now,
	}
	require.NoError(t, repos.Payments.Create(ctx, older))
	require.NoError(t, repos.Payments.Create(ctx, newer))

	got, err := repos.Payments.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Allocations, got.Allocations)
	assert.True(t, got.Balanced())

	list, err := repos.Payments.ListByLease(ctx, lease.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Empty(t, list[0].Allocations)

	require.NoError(t, got.Refund(now))
	require.NoError(t, repos.Payments.UpdateStatus(ctx, got))

	refunded, err := repos.Payments.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
}

func TestLateFeePolicyRepository_Upsert(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	repos := store.Repos()

	_, err := repos.Policies.GetByLLC(ctx, "llc-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	limit := domain.Money(10000)
	policy := &domain.LateFeePolicy{
		LLCID: "llc-1", Enabled: true, FeeType: domain.FeeTypePercentage,
		FeeAmount: decimal.RequireFromString("7.5"), MaxFeeAmount: &limit, GraceDays: 5,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repos.Policies.Upsert(ctx, policy))

	policy.GraceDays = 3
	require.NoError(t, repos.Policies.Upsert(ctx, policy))

	got, err := repos.Policies.GetByLLC(ctx, "llc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.GraceDays)
	assert.True(t, got.FeeAmount.Equal(decimal.RequireFromString("7.5")))
	require.NotNil(t, got.MaxFeeAmount)
	assert.Equal(t, limit, *got.MaxFeeAmount)
}

func TestPostgresStore_WithinTxRollsBack(t *testing.T) {
	store, lease := setupStore(t)
	ctx := context.Background()

	c := newCharge(t, lease, domain.ChargeTypeRent, 150000, "2024-01-01")
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Charges.Create(ctx, c); err != nil {
			return err
		}
		return customError.WrapValidation("abort")
	})
	assert.Equal(t, customError.ErrCodeValidation, customError.Code(err))

	_, err = store.Repos().Charges.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
