package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/service"
)

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) charge(args mock.Arguments) (*domain.Charge, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Charge), args.Error(1)
}

func (m *MockLedgerService) payment(args mock.Arguments) (*domain.Payment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockLedgerService) CreateCharge(ctx context.Context, in service.CreateChargeInput) (*domain.Charge, error) {
	return m.charge(m.Called(ctx, in))
}

func (m *MockLedgerService) GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error) {
	return m.charge(m.Called(ctx, chargeID))
}

func (m *MockLedgerService) ListCharges(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error) {
	args := m.Called(ctx, leaseID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Charge), args.Error(1)
}

func (m *MockLedgerService) VoidCharge(ctx context.Context, chargeID, reason, actorID string) (*domain.Charge, error) {
	return m.charge(m.Called(ctx, chargeID, reason, actorID))
}

func (m *MockLedgerService) ApplyLateFee(ctx context.Context, chargeID, actorID string) (*domain.Charge, error) {
	return m.charge(m.Called(ctx, chargeID, actorID))
}

func (m *MockLedgerService) RecordPayment(ctx context.Context, in service.RecordPaymentInput) (*domain.Payment, error) {
	return m.payment(m.Called(ctx, in))
}

func (m *MockLedgerService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return m.payment(m.Called(ctx, paymentID))
}

func (m *MockLedgerService) ListPayments(ctx context.Context, leaseID string) ([]*domain.Payment, error) {
	args := m.Called(ctx, leaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Payment), args.Error(1)
}

func (m *MockLedgerService) RefundPayment(ctx context.Context, paymentID, actorID string) (*domain.Payment, error) {
	return m.payment(m.Called(ctx, paymentID, actorID))
}

func (m *MockLedgerService) GetChargeBalance(ctx context.Context, leaseID string) (*domain.BalanceSummary, error) {
	args := m.Called(ctx, leaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BalanceSummary), args.Error(1)
}

func (m *MockLedgerService) GetLateFeePolicy(ctx context.Context, llcID string) (*domain.LateFeePolicy, error) {
	args := m.Called(ctx, llcID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LateFeePolicy), args.Error(1)
}

func (m *MockLedgerService) PutLateFeePolicy(ctx context.Context, policy *domain.LateFeePolicy) (*domain.LateFeePolicy, error) {
	args := m.Called(ctx, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LateFeePolicy), args.Error(1)
}
