package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/rental-ledger/internal/domain"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

func TestCreateCharge_Success(t *testing.T) {
	f := newFixture(t, "2024-01-01")

	charge, err := f.svc.CreateCharge(context.Background(), CreateChargeInput{
		LeaseID:     testLeaseID,
		Period:      "2024-01",
		Type:        domain.ChargeTypeRent,
		Amount:      150000,
		DueDate:     date(t, "2024-01-01"),
		Description: "January rent",
		ActorID:     testActor,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, charge.ID)
	assert.Equal(t, testLLCID, charge.LLCID)
	assert.Equal(t, domain.ChargeStatusOpen, charge.Status)
	assert.Equal(t, domain.Money(0), charge.PaidAmount)
	assert.Equal(t, testActor, charge.CreatedBy)
	require.NotNil(t, charge.Description)
	assert.Equal(t, "January rent", *charge.Description)

	stored := f.reload(t, charge.ID)
	assert.Equal(t, charge.Amount, stored.Amount)
	f.pub.AssertCalled(t, "Publish", mock.Anything, eventOfType("charge.created"))
}

func TestCreateCharge_Errors(t *testing.T) {
	f := newFixture(t, "2024-01-01")

	tests := []struct {
		name  string
		input CreateChargeInput
		code  string
	}{
		{
			name:  "unknown lease",
			input: CreateChargeInput{LeaseID: "missing", Period: "2024-01", Type: domain.ChargeTypeRent, Amount: 100, DueDate: date(t, "2024-01-01")},
			code:  customError.ErrCodeNotFound,
		},
		{
			name:  "zero amount",
			input: CreateChargeInput{LeaseID: testLeaseID, Period: "2024-01", Type: domain.ChargeTypeRent, Amount: 0, DueDate: date(t, "2024-01-01")},
			code:  customError.ErrCodeValidation,
		},
		{
			name:  "unknown type",
			input: CreateChargeInput{LeaseID: testLeaseID, Period: "2024-01", Type: "bogus", Amount: 100, DueDate: date(t, "2024-01-01")},
			code:  customError.ErrCodeValidation,
		},
		{
			name:  "bad period",
			input: CreateChargeInput{LeaseID: testLeaseID, Period: "Jan 2024", Type: domain.ChargeTypeRent, Amount: 100, DueDate: date(t, "2024-01-01")},
			code:  customError.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateCharge(context.Background(), tt.input)
			requireCode(t, err, tt.code)
		})
	}
}

func TestGetCharge_NotFound(t *testing.T) {
	f := newFixture(t, "2024-01-01")

	_, err := f.svc.GetCharge(context.Background(), "missing")

	requireCode(t, err, customError.ErrCodeNotFound)
	assert.True(t, errors.Is(err, customError.ErrNotFound))
}

func TestListCharges(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()
	feb := f.charge(t, domain.ChargeTypeRent, 100000, "2024-02-01")
	jan := f.charge(t, domain.ChargeTypeRent, 100000, "2024-01-01")
	util := f.charge(t, domain.ChargeTypeUtility, 5000, "2024-01-15")

	t.Run("ordered by due date", func(t *testing.T) {
		charges, err := f.svc.ListCharges(ctx, testLeaseID, domain.ChargeFilter{})
		require.NoError(t, err)
		require.Len(t, charges, 3)
		assert.Equal(t, []string{jan.ID, util.ID, feb.ID}, []string{charges[0].ID, charges[1].ID, charges[2].ID})
	})

	t.Run("filter by type and due range", func(t *testing.T) {
		rent := domain.ChargeTypeRent
		from := date(t, "2024-01-10")
		charges, err := f.svc.ListCharges(ctx, testLeaseID, domain.ChargeFilter{Type: &rent, DueFrom: &from})
		require.NoError(t, err)
		require.Len(t, charges, 1)
		assert.Equal(t, feb.ID, charges[0].ID)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		status := domain.ChargeStatus("late")
		_, err := f.svc.ListCharges(ctx, testLeaseID, domain.ChargeFilter{Status: &status})
		requireCode(t, err, customError.ErrCodeValidation)
	})

	t.Run("inverted range", func(t *testing.T) {
		from, to := date(t, "2024-02-01"), date(t, "2024-01-01")
		_, err := f.svc.ListCharges(ctx, testLeaseID, domain.ChargeFilter{DueFrom: &from, DueTo: &to})
		requireCode(t, err, customError.ErrCodeValidation)
	})

	t.Run("unknown lease is empty", func(t *testing.T) {
		charges, err := f.svc.ListCharges(ctx, "other", domain.ChargeFilter{})
		require.NoError(t, err)
		assert.Empty(t, charges)
	})
}

func TestVoidCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("open charge leaves the balance", func(t *testing.T) {
		f := newFixture(t, "2024-02-01")
		c := f.charge(t, domain.ChargeTypeUtility, 5000, "2024-01-15")

		voided, err := f.svc.VoidCharge(ctx, c.ID, "billed twice", testActor)

		require.NoError(t, err)
		assert.Equal(t, domain.ChargeStatusVoid, voided.Status)
		require.NotNil(t, voided.VoidReason)
		assert.Equal(t, "billed twice", *voided.VoidReason)
		assert.Equal(t, testActor, *voided.VoidedBy)

		balance, err := f.svc.GetChargeBalance(ctx, testLeaseID)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(0), balance.TotalCharges)
		assert.Equal(t, domain.Money(0), balance.OverdueAmount)
		f.pub.AssertCalled(t, "Publish", mock.Anything, eventOfType("charge.voided"))
	})

	t.Run("paid charge cannot be voided", func(t *testing.T) {
		f := newFixture(t, "2024-01-01")
		c := f.charge(t, domain.ChargeTypeRent, 1000, "2024-01-01")
		_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{LeaseID: testLeaseID, Amount: 1000, Method: domain.PaymentMethodCash})
		require.NoError(t, err)

		_, err = f.svc.VoidCharge(ctx, c.ID, "mistake", testActor)

		requireCode(t, err, customError.ErrCodeInvalidStatus)
		assert.Equal(t, domain.ChargeStatusPaid, f.reload(t, c.ID).Status)
	})

	t.Run("partial charge keeps its paid amount", func(t *testing.T) {
		f := newFixture(t, "2024-01-01")
		c := f.charge(t, domain.ChargeTypeRent, 1000, "2024-01-01")
		_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{LeaseID: testLeaseID, Amount: 400, Method: domain.PaymentMethodCheck})
		require.NoError(t, err)

		voided, err := f.svc.VoidCharge(ctx, c.ID, "lease ended", testActor)

		require.NoError(t, err)
		assert.Equal(t, domain.ChargeStatusVoid, voided.Status)
		assert.Equal(t, domain.Money(400), f.reload(t, c.ID).PaidAmount)
	})

	t.Run("already void", func(t *testing.T) {
		f := newFixture(t, "2024-01-01")
		c := f.charge(t, domain.ChargeTypeRent, 1000, "2024-01-01")
		_, err := f.svc.VoidCharge(ctx, c.ID, "first", testActor)
		require.NoError(t, err)

		_, err = f.svc.VoidCharge(ctx, c.ID, "second", testActor)

		requireCode(t, err, customError.ErrCodeInvalidStatus)
		assert.Contains(t, err.Error(), "already void")
		assert.Equal(t, "first", *f.reload(t, c.ID).VoidReason)
	})

	t.Run("missing charge", func(t *testing.T) {
		f := newFixture(t, "2024-01-01")
		_, err := f.svc.VoidCharge(ctx, "missing", "x", testActor)
		requireCode(t, err, customError.ErrCodeNotFound)
	})
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	failing := &mockPublisher{}
	failing.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))
	f.svc.publisher = failing

	c := f.charge(t, domain.ChargeTypeRent, 1000, "2024-01-01")

	assert.Equal(t, c.ID, f.reload(t, c.ID).ID)
	failing.AssertNumberOfCalls(t, "Publish", 1)
}
