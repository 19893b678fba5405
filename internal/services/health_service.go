package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"odoomaster/internal/infrastructure"
	"odoomaster/internal/license"
	"odoomaster/pkg/contracts"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthDeps are the components whose state the health endpoints report
type HealthDeps struct {
	Verifier  *license.Verifier
	Authority *license.Authority
	Ledger    Pinger
	Runtime   *infrastructure.RuntimeMetrics
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	deps      HealthDeps
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version string, deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		deps:      deps,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports whether each licensing component can serve
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"verifier": hs.checkVerifier(),
			"signing":  hs.checkSigning(),
			"ledger":   hs.checkLedger(ctx),
		},
	}

	for name, sh := range status.Services {
		if sh.Status == "not_ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "component not ready",
				slog.String("component", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
	}
	if hs.deps.Runtime != nil {
		stats := hs.deps.Runtime.Collect(ctx)
		status.Runtime["heap_bytes"] = stats.HeapBytes
		status.Runtime["gc_count"] = stats.GCCount
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

// checkVerifier is not_ready without a public key: every bundle would fail
func (hs *HealthService) checkVerifier() ServiceHealth {
	switch {
	case hs.deps.Verifier == nil:
		return ServiceHealth{Status: "not_ready", Message: "verifier not configured"}
	case !hs.deps.Verifier.HasPublicKey():
		return ServiceHealth{Status: "not_ready", Message: "no public key configured"}
	case hs.deps.Verifier.LegacyAllowed():
		return ServiceHealth{Status: "ready", Message: "legacy keys accepted"}
	default:
		return ServiceHealth{Status: "ready"}
	}
}

func (hs *HealthService) checkSigning() ServiceHealth {
	if hs.deps.Authority == nil {
		return ServiceHealth{Status: "disabled", Message: "no private key loaded"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkLedger(ctx context.Context) ServiceHealth {
	if hs.deps.Ledger == nil {
		return ServiceHealth{Status: "disabled"}
	}
	if err := hs.deps.Ledger.PingContext(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}
