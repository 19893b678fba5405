package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	licenseErrors "odoomaster/internal/errors"
	"odoomaster/internal/infra/sqlite"
	"odoomaster/internal/infrastructure"
	"odoomaster/internal/license"
	"odoomaster/internal/revocation"
	api "odoomaster/pkg/contracts/api/v1"
	"odoomaster/pkg/contracts/domain"
)

// LicenseService is what the HTTP and CLI adapters need from the licensing core
type LicenseService interface {
	// Issuing side
	Issue(ctx context.Context, req api.IssueLicenseRequest) (*domain.IssuedLicense, error)
	Revoke(ctx context.Context, req api.RevokeLicenseRequest) (*domain.RevocationResult, error)
	LedgerEntry(ctx context.Context, licenseID string) (*domain.LedgerEntry, error)

	// Verification of arbitrary input against a given fingerprint
	Verify(ctx context.Context, req api.VerifyLicenseRequest, lang language.Tag) domain.VerificationResult

	// Local installation
	Status(ctx context.Context, lang language.Tag) domain.LicenseStatus
	Activate(ctx context.Context, text string, lang language.Tag) (domain.LicenseStatus, error)
	Deactivate(ctx context.Context) error
	HardwareInfo(ctx context.Context) domain.HardwareInfo
	CheckLicense(ctx context.Context) license.Result
}

// Ledger records issued bundles. *sqlite.LicenseRepository satisfies it.
type Ledger interface {
	Create(ctx context.Context, l *sqlite.IssuedLicense) (int64, error)
	FindByLicenseID(ctx context.Context, licenseID string) (*sqlite.IssuedLicense, error)
	MarkRevoked(ctx context.Context, licenseID, reason string, at time.Time) (bool, error)
}

// HardwareSource yields the fingerprint and names the strategy behind it
type HardwareSource interface {
	Fingerprint(ctx context.Context) string
	Source() string
}

// LicenseDeps are the collaborators of the license service. Authority and
// Ledger are nil on verify-only installations, Store is nil on the issuing
// server.
type LicenseDeps struct {
	Authority *license.Authority
	Verifier  *license.Verifier
	Registry  *revocation.Registry
	Store     *license.Store
	Ledger    Ledger
	Hardware  HardwareSource
	Metrics   *license.Metrics
	Now       func() time.Time
	Location  *time.Location
}

type licenseService struct {
	deps   LicenseDeps
	logger *slog.Logger
}

// NewLicenseService creates the license service
func NewLicenseService(deps LicenseDeps, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Metrics == nil {
		deps.Metrics = license.NoopMetrics()
	}
	return &licenseService{
		deps:   deps,
		logger: logger.With(slog.String("service", "license")),
	}
}

// Issue signs a bundle and records it in the ledger. A bundle that could
// not be recorded is not returned.
func (s *licenseService) Issue(ctx context.Context, req api.IssueLicenseRequest) (*domain.IssuedLicense, error) {
	if s.deps.Authority == nil {
		return nil, fmt.Errorf("%w: no private key loaded", licenseErrors.ErrSigningUnavailable)
	}

	expiresAt, err := s.resolveExpiry(req)
	if err != nil {
		return nil, err
	}

	bundle, err := s.deps.Authority.Issue(ctx, license.IssueRequest{
		Plan:       req.Plan,
		IssuedTo:   req.IssuedTo,
		HardwareID: req.HardwareID,
		ExpiresAt:  expiresAt,
		LicenseID:  req.LicenseID,
	})
	if err != nil {
		return nil, err
	}

	data, err := bundle.File()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", licenseErrors.ErrEncoding, err)
	}

	if s.deps.Ledger != nil {
		_, err := s.deps.Ledger.Create(ctx, &sqlite.IssuedLicense{
			LicenseID:  bundle.LicenseID,
			Plan:       bundle.Plan,
			IssuedTo:   bundle.IssuedTo,
			HardwareID: bundle.HardwareID,
			ExpiresAt:  bundle.ExpiresAt,
			IssuedAt:   bundle.IssuedAt,
			Bundle:     string(data),
			CreatedAt:  s.deps.Now().UTC(),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to record issued license",
				slog.String("license_id", bundle.LicenseID),
				slog.String("error", err.Error()))
			infrastructure.RecordError(ctx, err)
			return nil, fmt.Errorf("%w: ledger: %v", licenseErrors.ErrStorage, err)
		}
	}

	s.logger.InfoContext(ctx, "license issued",
		slog.String("license_id", bundle.LicenseID),
		slog.String("plan", bundle.Plan),
		slog.Bool("ledger", s.deps.Ledger != nil))

	return &domain.IssuedLicense{
		LicenseID: bundle.LicenseID,
		FileName:  bundle.FileName(),
		ExpiresAt: bundle.ExpiresAt,
		Bundle:    json.RawMessage(data),
	}, nil
}

func (s *licenseService) resolveExpiry(req api.IssueLicenseRequest) (time.Time, error) {
	now := s.deps.Now()
	switch {
	case req.Unlimited:
		return license.UnlimitedExpiry(now), nil
	case strings.TrimSpace(req.ExpiresAt) != "":
		t, err := license.ParseTimestamp(req.ExpiresAt, s.deps.Location)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: expires_at: %v", licenseErrors.ErrEncoding, err)
		}
		return t, nil
	case req.Days > 0:
		return now.AddDate(0, 0, req.Days), nil
	default:
		return time.Time{}, fmt.Errorf("%w: one of expires_at, days or unlimited is required", licenseErrors.ErrEncoding)
	}
}

// Revoke writes a registry entry and flags the ledger row when the license
// is known there
func (s *licenseService) Revoke(ctx context.Context, req api.RevokeLicenseRequest) (*domain.RevocationResult, error) {
	if s.deps.Registry == nil {
		return nil, fmt.Errorf("%w: no revocation registry", licenseErrors.ErrStorage)
	}

	key := strings.TrimSpace(req.LicenseID)
	if key == "" {
		key = strings.TrimSpace(req.Key)
	}
	hardwareID := strings.TrimSpace(req.HardwareID)
	if key == "" && hardwareID == "" {
		return nil, fmt.Errorf("%w: license_id, key or hardware_id is required", ErrInvalidInput)
	}

	added, err := s.deps.Registry.Add(ctx, key, hardwareID, req.Reason)
	if err != nil {
		return nil, err
	}
	if added {
		s.deps.Metrics.RecordRevocation(ctx)
	}

	result := &domain.RevocationResult{Added: added, HardwareID: hardwareID}
	if key != "" {
		result.KeyHash = revocation.HashKey(key)
	}

	if licenseID := strings.TrimSpace(req.LicenseID); licenseID != "" && s.deps.Ledger != nil {
		changed, err := s.deps.Ledger.MarkRevoked(ctx, licenseID, req.Reason, s.deps.Now().UTC())
		if err != nil {
			// the registry entry is what verifiers read
			s.logger.WarnContext(ctx, "failed to mark ledger row revoked",
				slog.String("license_id", licenseID),
				slog.String("error", err.Error()))
		}
		result.Ledger = changed
	}

	s.logger.InfoContext(ctx, "revocation processed",
		slog.Bool("added", added),
		slog.String("key_hash", result.KeyHash),
		slog.String("hardware_id", hardwareID))
	return result, nil
}

// LedgerEntry reads one issued license back from the ledger
func (s *licenseService) LedgerEntry(ctx context.Context, licenseID string) (*domain.LedgerEntry, error) {
	if s.deps.Ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	row, err := s.deps.Ledger.FindByLicenseID(ctx, strings.TrimSpace(licenseID))
	if err != nil {
		return nil, fmt.Errorf("%w: ledger: %v", licenseErrors.ErrStorage, err)
	}
	if row == nil {
		return nil, ErrLicenseNotFound
	}
	return &domain.LedgerEntry{
		LicenseID:     row.LicenseID,
		Plan:          row.Plan,
		IssuedTo:      row.IssuedTo,
		HardwareID:    row.HardwareID,
		ExpiresAt:     row.ExpiresAt,
		IssuedAt:      row.IssuedAt,
		Revoked:       row.Revoked,
		RevokedReason: row.RevokedReason,
		RevokedAt:     row.RevokedAt,
		Bundle:        json.RawMessage(row.Bundle),
	}, nil
}

// Verify checks the submitted license against the submitted fingerprint
func (s *licenseService) Verify(ctx context.Context, req api.VerifyLicenseRequest, lang language.Tag) domain.VerificationResult {
	res := s.deps.Verifier.VerifyText(ctx, req.License, req.HardwareID)
	return ToVerificationResult(res, lang)
}

// Status re-verifies the locally installed license
func (s *licenseService) Status(ctx context.Context, lang language.Tag) domain.LicenseStatus {
	if s.deps.Store == nil {
		res := license.Result{Code: license.CodeNotActivated}
		return domain.LicenseStatus{
			VerificationResult: ToVerificationResult(res, lang),
			CheckedAt:          s.deps.Now(),
		}
	}

	info := s.deps.Store.Info(ctx)
	return domain.LicenseStatus{
		VerificationResult: ToVerificationResult(info.Result, lang),
		DeviceHardwareID:   info.HardwareID,
		KeyPartial:         info.KeyPartial,
		Source:             info.Result.Source,
		CheckedAt:          s.deps.Now(),
	}
}

// Activate installs text on this machine. The returned error is the
// sentinel of the failure code.
func (s *licenseService) Activate(ctx context.Context, text string, lang language.Tag) (domain.LicenseStatus, error) {
	if s.deps.Store == nil {
		return domain.LicenseStatus{}, ErrLocalStoreDisabled
	}

	res := s.deps.Store.Activate(ctx, text)
	status := domain.LicenseStatus{
		VerificationResult: ToVerificationResult(res, lang),
		DeviceHardwareID:   s.deps.Store.HardwareID(ctx),
		Source:             res.Source,
		CheckedAt:          s.deps.Now(),
	}
	if !res.OK() {
		return status, fmt.Errorf("%w: %s", res.Err(), res.Reason())
	}
	return status, nil
}

// Deactivate removes the local license files
func (s *licenseService) Deactivate(ctx context.Context) error {
	if s.deps.Store == nil {
		return ErrLocalStoreDisabled
	}
	return s.deps.Store.Deactivate(ctx)
}

// HardwareInfo reports this machine's fingerprint
func (s *licenseService) HardwareInfo(ctx context.Context) domain.HardwareInfo {
	if s.deps.Hardware == nil {
		return domain.HardwareInfo{}
	}
	return domain.HardwareInfo{
		HardwareID: s.deps.Hardware.Fingerprint(ctx),
		Source:     s.deps.Hardware.Source(),
	}
}

// CheckLicense returns the raw verdict on the local license, used by the
// license gate
func (s *licenseService) CheckLicense(ctx context.Context) license.Result {
	if s.deps.Store == nil {
		return license.Result{Code: license.CodeNotActivated}
	}
	return s.deps.Store.Load(ctx)
}

// ToVerificationResult renders a license result for the wire
func ToVerificationResult(res license.Result, lang language.Tag) domain.VerificationResult {
	out := domain.VerificationResult{
		OK:         res.OK(),
		Code:       string(res.Code),
		Reason:     res.Message(lang),
		Format:     domain.LicenseFormat(res.Format),
		LicenseID:  res.LicenseID,
		Plan:       res.Plan,
		IssuedTo:   res.IssuedTo,
		HardwareID: res.HardwareID,
		ExpiresAt:  res.ExpiryText,
	}
	if res.OK() {
		out.DaysRemaining = res.DaysRemaining
		out.IsLifetime = res.Lifetime
	}
	return out
}

// IsNotFound reports whether err means the requested record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLicenseNotFound)
}
