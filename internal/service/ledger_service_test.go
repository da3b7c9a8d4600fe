package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/events"
	"github.com/segyhp/rental-ledger/internal/idempotency"
	"github.com/segyhp/rental-ledger/internal/repository/memory"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
)

const (
	testLeaseID = "lease-1"
	testLLCID   = "llc-1"
	testActor   = "manager-1"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.LedgerEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e events.LedgerEvent) bool { return e.Type == eventType })
}

type fixture struct {
	store *memory.Store
	pub   *mockPublisher
	keys  *idempotency.MemoryStore
	svc   *LedgerService
	now   time.Time
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		pub:   &mockPublisher{},
		keys:  idempotency.NewMemoryStore(time.Hour),
		now:   date(t, today).Add(10 * time.Hour),
	}
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.store.AddLease(domain.Lease{
		ID:       testLeaseID,
		LLCID:    testLLCID,
		TenantID: "tenant-1",
		Status:   domain.LeaseStatusActive,
	})
	f.svc = NewLedgerService(f.store,
		WithClock(func() time.Time { return f.now }),
		WithPublisher(f.pub),
		WithIdempotency(f.keys),
		WithLogger(zap.NewNop()),
	)
	return f
}

func (f *fixture) setToday(t *testing.T, today string) {
	f.now = date(t, today).Add(10 * time.Hour)
}

func (f *fixture) charge(t *testing.T, chargeType domain.ChargeType, amount domain.Money, due string) *domain.Charge {
	t.Helper()
	c, err := f.svc.CreateCharge(context.Background(), CreateChargeInput{
		LeaseID: testLeaseID,
		Period:  due[:7],
		Type:    chargeType,
		Amount:  amount,
		DueDate: date(t, due),
		ActorID: testActor,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) flatPolicy(fee int64, graceDays int) {
	f.store.PutPolicy(domain.LateFeePolicy{
		LLCID:     testLLCID,
		Enabled:   true,
		FeeType:   domain.FeeTypeFlat,
		FeeAmount: decimal.NewFromInt(fee),
		GraceDays: graceDays,
	})
}

func (f *fixture) reload(t *testing.T, id string) *domain.Charge {
	t.Helper()
	c, err := f.svc.GetCharge(context.Background(), id)
	require.NoError(t, err)
	return c
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, customError.Code(err), err.Error())
}
