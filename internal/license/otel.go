package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of license spans
const TracerName = "odoomaster/license"

// Metrics holds the license instruments and the tracer used for spans
type Metrics struct {
	Verifications        metric.Int64Counter
	VerificationDuration metric.Float64Histogram
	Issued               metric.Int64Counter
	Revocations          metric.Int64Counter
	Activations          metric.Int64Counter

	tracer trace.Tracer
}

// NewMetrics creates every license instrument on meter
func NewMetrics(meter metric.Meter, tracer trace.Tracer) (*Metrics, error) {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(TracerName)
	}
	m := &Metrics{tracer: tracer}

	var err error
	m.Verifications, err = meter.Int64Counter(
		"license_verifications_total",
		metric.WithDescription("License verifications by outcome code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifications counter: %w", err)
	}

	m.VerificationDuration, err = meter.Float64Histogram(
		"license_verification_duration_seconds",
		metric.WithDescription("License verification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification duration histogram: %w", err)
	}

	m.Issued, err = meter.Int64Counter(
		"license_issued_total",
		metric.WithDescription("Signed license bundles issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issued counter: %w", err)
	}

	m.Revocations, err = meter.Int64Counter(
		"license_revocations_total",
		metric.WithDescription("Revocation entries written"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revocations counter: %w", err)
	}

	m.Activations, err = meter.Int64Counter(
		"license_activations_total",
		metric.WithDescription("Local license activations by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activations counter: %w", err)
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter(TracerName), nil)
	if err != nil {
		// the noop meter never fails
		panic(err)
	}
	return m
}

func (m *Metrics) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordVerification counts a verification and ends its span
func (m *Metrics) recordVerification(ctx context.Context, span trace.Span, r Result, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("code", string(r.Code)),
		attribute.String("format", string(r.Format)),
	)
	m.Verifications.Add(ctx, 1, attrs)
	m.VerificationDuration.Record(ctx, time.Since(started).Seconds(), attrs)

	span.SetAttributes(
		attribute.String("license.code", string(r.Code)),
		attribute.String("license.format", string(r.Format)),
	)
	if r.OK() {
		span.SetStatus(codes.Ok, "license valid")
	} else {
		span.SetStatus(codes.Error, string(r.Code))
	}
	span.End()
}

// RecordIssued counts an issued bundle
func (m *Metrics) RecordIssued(ctx context.Context, plan string) {
	m.Issued.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", plan)))
}

// RecordRevocation counts a revocation that changed the registry
func (m *Metrics) RecordRevocation(ctx context.Context) {
	m.Revocations.Add(ctx, 1)
}

func (m *Metrics) recordActivation(ctx context.Context, r Result) {
	result := "success"
	if !r.OK() {
		result = string(r.Code)
	}
	m.Activations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
