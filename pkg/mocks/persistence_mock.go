// Package mocks provides testify mocks for the persistence and event bus
// interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) SaveConnection(ctx context.Context, conn *models.Connection) error {
	args := m.Called(ctx, conn)

	return args.Error(0)
}

func (m *MockPersistence) ConnectionByID(ctx context.Context, id string) (*models.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockPersistence) ActiveConnection(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	args := m.Called(ctx, tenantID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockPersistence) ConnectionsByTenant(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Connection), args.Error(1)
}

func (m *MockPersistence) DeactivateConnection(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) CreateCreditAccount(ctx context.Context, account *models.CreditAccount) error {
	args := m.Called(ctx, account)

	return args.Error(0)
}

func (m *MockPersistence) CreditAccountByTenant(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.CreditAccount), args.Error(1)
}

func (m *MockPersistence) ApplyLedger(ctx context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error) {
	args := m.Called(ctx, tenantID, newTier, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.CreditAccount), args.Error(1)
}

func (m *MockPersistence) TransactionsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.CreditTransaction), args.Error(1)
}

func (m *MockPersistence) CreditAccountTenantIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
