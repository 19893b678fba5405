package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"odoomaster/internal/infra/sqlite"
)

// MockLedger is a mock for the Ledger interface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Create(ctx context.Context, l *sqlite.IssuedLicense) (int64, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) FindByLicenseID(ctx context.Context, licenseID string) (*sqlite.IssuedLicense, error) {
	args := m.Called(ctx, licenseID)
	row, _ := args.Get(0).(*sqlite.IssuedLicense)
	return row, args.Error(1)
}

func (m *MockLedger) MarkRevoked(ctx context.Context, licenseID, reason string, at time.Time) (bool, error) {
	args := m.Called(ctx, licenseID, reason, at)
	return args.Bool(0), args.Error(1)
}
