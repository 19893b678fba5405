package license

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"odoomaster/internal/config"
)

const lifetimeThresholdDays = config.LifetimeThreshold

// RevocationChecker answers whether a license key/id or a device is revoked
type RevocationChecker interface {
	Contains(ctx context.Context, key, hardwareID string) bool
}

// VerifierOption customizes a Verifier
type VerifierOption func(*Verifier)

// WithAllowLegacy lets legacy keys through even when a public key is configured
func WithAllowLegacy(allow bool) VerifierOption {
	return func(v *Verifier) { v.allowLegacy = allow }
}

// WithLegacySecret sets the shared secret of the legacy format
func WithLegacySecret(secret string) VerifierOption {
	return func(v *Verifier) { v.legacy = NewLegacyAdapter(secret) }
}

// WithVerifierClock overrides the current time
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithLocation sets the zone for timestamps that carry none
func WithLocation(loc *time.Location) VerifierOption {
	return func(v *Verifier) { v.location = loc }
}

// WithVerifierLogger sets the logger
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

// WithVerifierMetrics sets the instruments
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// Verifier checks bundles and legacy keys offline. The public key comes
// from deployment configuration, never from the license itself.
type Verifier struct {
	publicKey   *rsa.PublicKey
	registry    RevocationChecker
	legacy      *LegacyAdapter
	allowLegacy bool
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
	metrics     *Metrics
}

// NewVerifier builds a verifier. A nil publicKey fails every bundle with
// NoPublicKey; a nil registry revokes nothing.
func NewVerifier(publicKey *rsa.PublicKey, registry RevocationChecker, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		publicKey: publicKey,
		registry:  registry,
		legacy:    NewLegacyAdapter(config.DefaultLegacySecret),
		now:       time.Now,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = componentLogger(v.logger)
	if v.metrics == nil {
		v.metrics = NoopMetrics()
	}
	return v
}

// HasPublicKey reports whether bundles can be verified at all
func (v *Verifier) HasPublicKey() bool { return v.publicKey != nil }

// LegacyAllowed reports whether legacy keys pass the gate
func (v *Verifier) LegacyAllowed() bool {
	return v.publicKey == nil || v.allowLegacy
}

// Now is the verifier's clock
func (v *Verifier) Now() time.Time { return v.now() }

// Verify dispatches on the input format
func (v *Verifier) Verify(ctx context.Context, input LicenseInput, fingerprint string) Result {
	switch in := input.(type) {
	case V2Bundle:
		return v.VerifyBundle(ctx, in.Fields, fingerprint)
	case LegacyKey:
		return v.VerifyLegacy(ctx, in.Key, fingerprint)
	default:
		return failure(CodeMalformed, "", fmt.Sprintf("unknown input %T", input))
	}
}

// VerifyText classifies text and verifies it
func (v *Verifier) VerifyText(ctx context.Context, text, fingerprint string) Result {
	return v.Verify(ctx, Classify(text), fingerprint)
}

// bundleCheck is one step of bundle verification. It returns CodeValid to
// continue, anything else stops the pipeline.
type bundleCheck struct {
	name string
	run  func(v *Verifier, ctx context.Context, s *bundleState) Code
}

type bundleState struct {
	fields      map[string]any
	fingerprint string
	now         time.Time
	signature   []byte
	res         Result
}

var bundleChecks = []bundleCheck{
	{"structure", (*Verifier).checkStructure},
	{"signature_presence", (*Verifier).checkSignaturePresence},
	{"key_availability", (*Verifier).checkKeyAvailability},
	{"signature", (*Verifier).checkSignature},
	{"hardware_binding", (*Verifier).checkHardwareBinding},
	{"expiry", (*Verifier).checkExpiry},
	{"revocation", (*Verifier).checkRevocation},
}

// VerifyBundle runs the ordered checks over a decoded bundle; the first
// failure wins. It never panics or returns an error.
func (v *Verifier) VerifyBundle(ctx context.Context, fields map[string]any, fingerprint string) Result {
	started := time.Now()
	ctx, span := v.metrics.startSpan(ctx, "license.verify", attribute.String("license.format", string(FormatV2)))

	state := &bundleState{
		fields:      fields,
		fingerprint: strings.TrimSpace(fingerprint),
		now:         v.now(),
		res:         Result{Format: FormatV2},
	}

	state.res.Code = CodeValid
	for _, check := range bundleChecks {
		if code := check.run(v, ctx, state); code != CodeValid {
			state.res.Code = code
			logAction(ctx, v.logger, slog.LevelWarn, "verify", "license check failed",
				append(resultAttrs(state.res), slog.String("step", check.name))...)
			break
		}
	}

	if state.res.OK() {
		state.res.DaysRemaining = DaysBetween(state.now, state.res.ExpiresAt)
		state.res.Lifetime = state.res.DaysRemaining > lifetimeThresholdDays
		logAction(ctx, v.logger, slog.LevelDebug, "verify", "license valid", resultAttrs(state.res)...)
	}

	v.metrics.recordVerification(ctx, span, state.res, started)
	return state.res
}

func (v *Verifier) checkStructure(ctx context.Context, s *bundleState) Code {
	if s.fields == nil {
		s.res.Detail = "bundle is not a JSON object"
		return CodeUnsupportedVersion
	}
	version, ok := versionOf(s.fields[FieldVersion])
	if !ok || version != FormatVersion {
		s.res.Detail = fmt.Sprintf("version %v", s.fields[FieldVersion])
		return CodeUnsupportedVersion
	}

	s.res.LicenseID = licenseIDOf(s.fields)
	s.res.Plan, _ = stringField(s.fields, FieldPlan)
	s.res.IssuedTo, _ = stringField(s.fields, FieldIssuedTo)
	s.res.ExpiryText, _ = stringField(s.fields, FieldExpiresAt)
	return CodeValid
}

func (v *Verifier) checkSignaturePresence(ctx context.Context, s *bundleState) Code {
	sig, ok := s.fields[FieldSignature].(string)
	if !ok || sig == "" {
		s.res.Detail = "sig missing"
		return CodeMissingSignature
	}
	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || len(decoded) == 0 {
		s.res.Detail = "sig is not base64"
		return CodeMissingSignature
	}
	s.signature = decoded
	return CodeValid
}

func (v *Verifier) checkKeyAvailability(ctx context.Context, s *bundleState) Code {
	if v.publicKey == nil {
		return CodeNoPublicKey
	}
	return CodeValid
}

func (v *Verifier) checkSignature(ctx context.Context, s *bundleState) Code {
	payload := make(map[string]any, len(s.fields))
	for k, val := range s.fields {
		if k != FieldSignature {
			payload[k] = val
		}
	}

	message, err := Canonicalize(payload)
	if err != nil {
		s.res.Detail = err.Error()
		return CodeBadSignature
	}

	digest := sha256.Sum256(message)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(v.publicKey, crypto.SHA256, digest[:], s.signature, opts); err != nil {
		s.res.Detail = err.Error()
		return CodeBadSignature
	}
	return CodeValid
}

func (v *Verifier) checkHardwareBinding(ctx context.Context, s *bundleState) Code {
	hwid, ok := stringField(s.fields, FieldHardwareID)
	if !ok {
		s.res.Detail = "hardware_id is not a string"
		return CodeWrongDevice
	}
	hwid = strings.TrimSpace(hwid)
	s.res.HardwareID = hwid
	if hwid != "" && hwid != s.fingerprint {
		s.res.Detail = "bound to " + hwid
		return CodeWrongDevice
	}
	return CodeValid
}

func (v *Verifier) checkExpiry(ctx context.Context, s *bundleState) Code {
	expiresAt, err := ParseTimestamp(s.res.ExpiryText, v.location)
	if err != nil {
		s.res.Detail = err.Error()
		return CodeInvalidExpiry
	}
	s.res.ExpiresAt = expiresAt
	if s.now.After(expiresAt) {
		return CodeExpired
	}
	return CodeValid
}

func (v *Verifier) checkRevocation(ctx context.Context, s *bundleState) Code {
	if v.registry != nil && v.registry.Contains(ctx, s.res.LicenseID, s.fingerprint) {
		return CodeRevoked
	}
	return CodeValid
}

// VerifyLegacy applies the legacy gate, the legacy checks and revocation
// by hash of the whole key.
func (v *Verifier) VerifyLegacy(ctx context.Context, key, fingerprint string) Result {
	started := time.Now()
	ctx, span := v.metrics.startSpan(ctx, "license.verify", attribute.String("license.format", string(FormatLegacy)))

	key = strings.TrimSpace(key)
	fingerprint = strings.TrimSpace(fingerprint)

	var res Result
	switch {
	case !v.LegacyAllowed():
		res = failure(CodeLegacyDisabled, FormatLegacy, "public key configured and legacy keys not allowed")
	default:
		res = v.legacy.Check(key, fingerprint, v.now(), v.location)
		if res.OK() && v.registry != nil && v.registry.Contains(ctx, key, fingerprint) {
			res.Code = CodeRevoked
		}
	}

	if res.OK() {
		logAction(ctx, v.logger, slog.LevelDebug, "verify", "legacy license valid",
			append(resultAttrs(res), slog.String("key", maskKey(key)))...)
	} else {
		logAction(ctx, v.logger, slog.LevelWarn, "verify", "legacy license check failed",
			append(resultAttrs(res), slog.String("key_hash", hashForLog(key)))...)
	}

	v.metrics.recordVerification(ctx, span, res, started)
	return res
}

// versionOf accepts a JSON number or a numeric string
func versionOf(raw any) (int, bool) {
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
		f, err := x.Float64()
		if err != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case int:
		return x, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	default:
		return 0, false
	}
}

// stringField returns "" for a missing or null field and false for a
// field of any other non-string type
func stringField(fields map[string]any, key string) (string, bool) {
	switch x := fields[key].(type) {
	case nil:
		return "", true
	case string:
		return x, true
	default:
		return "", false
	}
}

func licenseIDOf(fields map[string]any) string {
	if id, _ := stringField(fields, FieldLicenseID); strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	id, _ := stringField(fields, "id")
	return strings.TrimSpace(id)
}
