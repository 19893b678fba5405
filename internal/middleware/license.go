package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/infrastructure"
	"odoomaster/internal/license"
)

type gateResultKey struct{}

// LicenseGate admits requests only while the local license verifies.
// Verdicts are memoized for a short TTL so the license files are not
// re-read on every request.
type LicenseGate struct {
	checker LicenseChecker
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	decisions metric.Int64Counter

	mu        sync.Mutex
	cached    license.Result
	checkedAt time.Time
	hasCached bool
}

// GateOption customizes a LicenseGate
type GateOption func(*LicenseGate)

// WithGateTTL sets how long a verdict is reused
func WithGateTTL(ttl time.Duration) GateOption {
	return func(g *LicenseGate) { g.ttl = ttl }
}

// WithGateClock overrides the time source of the memo
func WithGateClock(now func() time.Time) GateOption {
	return func(g *LicenseGate) { g.now = now }
}

// WithGateMeter records allow/deny decisions on meter
func WithGateMeter(meter metric.Meter) GateOption {
	return func(g *LicenseGate) {
		counter, err := meter.Int64Counter("license_gate_decisions_total",
			metric.WithDescription("Requests admitted or refused by the license gate"))
		if err == nil {
			g.decisions = counter
		}
	}
}

// NewLicenseGate creates the gate
func NewLicenseGate(checker LicenseChecker, logger *slog.Logger, opts ...GateOption) *LicenseGate {
	g := &LicenseGate{
		checker: checker,
		logger:  logger.With(slog.String("component", "license_gate")),
		ttl:     30 * time.Second,
		now:     time.Now,
	}
	g.decisions, _ = noop.NewMeterProvider().Meter(infrastructure.MeterName).Int64Counter("license_gate_decisions_total")
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the middleware handler function
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		res, cached := g.check(ctx)

		decision := "allow"
		if !res.OK() {
			decision = "deny"
		}
		g.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decision", decision),
			attribute.Bool("cached", cached),
		))

		if !res.OK() {
			g.logger.WarnContext(ctx, "request refused by license gate",
				slog.String("path", r.URL.Path),
				slog.String("code", string(res.Code)),
				slog.Bool("cached", cached),
			)
			g.deny(w, r, res)
			return
		}

		ctx = context.WithValue(ctx, gateResultKey{}, res)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Invalidate drops the memoized verdict. Call it after activation or
// deactivation.
func (g *LicenseGate) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasCached = false
	g.cached = license.Result{}
}

// check holds the lock across the underlying check so concurrent misses
// load the license once
func (g *LicenseGate) check(ctx context.Context) (license.Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasCached && g.now().Sub(g.checkedAt) < g.ttl {
		return g.cached, true
	}

	res := g.checker.CheckLicense(ctx)
	g.cached = res
	g.checkedAt = g.now()
	g.hasCached = true

	g.logger.DebugContext(ctx, "license gate refreshed",
		slog.String("code", string(res.Code)),
		slog.Int("days_remaining", res.DaysRemaining),
	)
	return res, false
}

func (g *LicenseGate) deny(w http.ResponseWriter, r *http.Request, res license.Result) {
	lang := license.MatchLanguage(r.Header.Get("Accept-Language"))
	reqID := middleware.GetReqID(r.Context())

	problem, ok := apierrors.LicenseProblem(res.Err(), res.Message(lang), r.URL.Path)
	if !ok {
		problem = apierrors.NewProblemDetails(http.StatusForbidden, apierrors.TypeLicenseNotActivated,
			"License Required", res.Message(lang), r.URL.Path)
	}
	problem.WithExtension("code", string(res.Code))
	if reqID != "" {
		problem.WithExtension("trace_id", reqID)
	}
	render.Render(w, r, problem)
}

// GateResult returns the license verdict that admitted the request
func GateResult(ctx context.Context) (license.Result, bool) {
	res, ok := ctx.Value(gateResultKey{}).(license.Result)
	return res, ok
}
