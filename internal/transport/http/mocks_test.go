package http

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"
	"golang.org/x/text/language"

	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/license"
	"odoomaster/internal/middleware"
	api "odoomaster/pkg/contracts/api/v1"
	"odoomaster/pkg/contracts/domain"
)

// MockLicenseService is a mock implementation of services.LicenseService
type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) Issue(ctx context.Context, req api.IssueLicenseRequest) (*domain.IssuedLicense, error) {
	args := m.Called(ctx, req)
	issued, _ := args.Get(0).(*domain.IssuedLicense)
	return issued, args.Error(1)
}

func (m *MockLicenseService) Revoke(ctx context.Context, req api.RevokeLicenseRequest) (*domain.RevocationResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.RevocationResult)
	return result, args.Error(1)
}

func (m *MockLicenseService) LedgerEntry(ctx context.Context, licenseID string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, licenseID)
	entry, _ := args.Get(0).(*domain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *MockLicenseService) Verify(ctx context.Context, req api.VerifyLicenseRequest, lang language.Tag) domain.VerificationResult {
	args := m.Called(ctx, req, lang)
	return args.Get(0).(domain.VerificationResult)
}

func (m *MockLicenseService) Status(ctx context.Context, lang language.Tag) domain.LicenseStatus {
	args := m.Called(ctx, lang)
	return args.Get(0).(domain.LicenseStatus)
}

func (m *MockLicenseService) Activate(ctx context.Context, text string, lang language.Tag) (domain.LicenseStatus, error) {
	args := m.Called(ctx, text, lang)
	return args.Get(0).(domain.LicenseStatus), args.Error(1)
}

func (m *MockLicenseService) Deactivate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLicenseService) HardwareInfo(ctx context.Context) domain.HardwareInfo {
	args := m.Called(ctx)
	return args.Get(0).(domain.HardwareInfo)
}

func (m *MockLicenseService) CheckLicense(ctx context.Context) license.Result {
	args := m.Called(ctx)
	return args.Get(0).(license.Result)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLicenseHandler(svc *MockLicenseService) *LicenseHandler {
	logger := discardLogger()
	return NewLicenseHandler(svc, middleware.NewRequestValidator(0), apierrors.NewErrorHandler(logger, false), logger)
}
