package license

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"odoomaster/internal/config"
	licenseErrors "odoomaster/internal/errors"
)

// IssueRequest describes the bundle to mint
type IssueRequest struct {
	Plan       string    `validate:"required,max=64,printascii"`
	IssuedTo   string    `validate:"max=256"`
	HardwareID string    `validate:"omitempty,max=128,printascii"`
	ExpiresAt  time.Time `validate:"required"`
	// LicenseID is generated when empty
	LicenseID string `validate:"omitempty,max=128,printascii"`
}

// UnlimitedExpiry is the horizon used for licenses sold without an end date
func UnlimitedExpiry(now time.Time) time.Time {
	return now.AddDate(config.UnlimitedYears, 0, 0)
}

// AuthorityOption customizes an Authority
type AuthorityOption func(*Authority)

// WithAuthorityClock overrides the issue time source
func WithAuthorityClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) { a.now = now }
}

// WithAuthorityLocation sets the location whose wall time expires_at is
// written in. It should match the verifiers' location; default time.Local.
func WithAuthorityLocation(loc *time.Location) AuthorityOption {
	return func(a *Authority) { a.location = loc }
}

// WithRandom replaces the randomness used for ids, nonces and PSS salt
func WithRandom(r io.Reader) AuthorityOption {
	return func(a *Authority) { a.random = r }
}

// WithAuthorityLogger sets the logger
func WithAuthorityLogger(logger *slog.Logger) AuthorityOption {
	return func(a *Authority) { a.logger = logger }
}

// WithAuthorityMetrics sets the instruments
func WithAuthorityMetrics(m *Metrics) AuthorityOption {
	return func(a *Authority) { a.metrics = m }
}

// Authority signs license bundles. It holds the private key and must only
// run on the issuing side.
type Authority struct {
	key      *rsa.PrivateKey
	validate *validator.Validate
	now      func() time.Time
	location *time.Location
	random   io.Reader
	logger   *slog.Logger
	metrics  *Metrics
}

// NewAuthority returns an Authority for key. A nil key is ErrSigningUnavailable.
func NewAuthority(key *rsa.PrivateKey, opts ...AuthorityOption) (*Authority, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no private key", licenseErrors.ErrSigningUnavailable)
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: key size %d below minimum %d", licenseErrors.ErrSigningUnavailable, key.N.BitLen(), MinKeyBits)
	}

	a := &Authority{
		key:      key,
		validate: validator.New(),
		now:      time.Now,
		location: time.Local,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = componentLogger(a.logger)
	if a.metrics == nil {
		a.metrics = NoopMetrics()
	}
	return a, nil
}

// PublicKey returns the verification half of the signing key
func (a *Authority) PublicKey() *rsa.PublicKey {
	return &a.key.PublicKey
}

// Issue validates req and returns a signed bundle. No bundle is returned
// unless signing succeeded.
func (a *Authority) Issue(ctx context.Context, req IssueRequest) (*Bundle, error) {
	ctx, span := a.metrics.startSpan(ctx, "license.issue", attribute.String("license.plan", req.Plan))
	defer span.End()

	bundle, err := a.issue(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logAction(ctx, a.logger, slog.LevelError, "issue", "license issuance failed",
			slog.String("plan", req.Plan),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	a.metrics.RecordIssued(ctx, bundle.Plan)
	span.SetAttributes(attribute.String("license.id", bundle.LicenseID))
	logAction(ctx, a.logger, slog.LevelInfo, "issue", "license issued",
		slog.String("license_id", bundle.LicenseID),
		slog.String("plan", bundle.Plan),
		slog.Bool("hardware_bound", bundle.HardwareID != ""),
		slog.String("expires_at", bundle.ExpiresAt),
	)
	return bundle, nil
}

func (a *Authority) issue(req IssueRequest) (*Bundle, error) {
	req.Plan = strings.TrimSpace(req.Plan)
	req.IssuedTo = strings.TrimSpace(req.IssuedTo)
	req.HardwareID = strings.TrimSpace(req.HardwareID)
	req.LicenseID = strings.TrimSpace(req.LicenseID)

	if err := a.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", licenseErrors.ErrEncoding, describeValidation(err))
	}
	if req.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: expiry is required", licenseErrors.ErrEncoding)
	}

	licenseID := req.LicenseID
	if licenseID == "" {
		id, err := a.randomHex(12)
		if err != nil {
			return nil, err
		}
		licenseID = id
	}
	nonce, err := a.randomHex(8)
	if err != nil {
		return nil, err
	}

	payload := Payload{
		V:          FormatVersion,
		LicenseID:  licenseID,
		Plan:       req.Plan,
		IssuedTo:   req.IssuedTo,
		HardwareID: req.HardwareID,
		ExpiresAt:  req.ExpiresAt.In(a.location).Format(ExpiryLayout),
		IssuedAt:   a.now().UTC().Format(IssuedAtLayout),
		Nonce:      nonce,
	}

	sig, err := a.Sign(payload.Fields())
	if err != nil {
		return nil, err
	}
	return &Bundle{Payload: payload, Sig: sig}, nil
}

// Sign returns the base64 RSA-PSS SHA-256 signature over the canonical
// bytes of fields, using the maximum salt length.
func (a *Authority) Sign(fields map[string]any) (string, error) {
	message, err := Canonicalize(fields)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(a.random, a.key, crypto.SHA256, digest[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256})
	if err != nil {
		return "", fmt.Errorf("%w: %v", licenseErrors.ErrSigningUnavailable, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (a *Authority) randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(a.random, buf); err != nil {
		return "", fmt.Errorf("%w: randomness unavailable: %v", licenseErrors.ErrSigningUnavailable, err)
	}
	return hex.EncodeToString(buf), nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
