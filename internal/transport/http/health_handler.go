package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"odoomaster/internal/services"
)

// HealthHandler serves the daemon's health, readiness and version endpoints.
// None of them touch the license gate, so an installation without a valid
// license still reports whether it is able to verify one.
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler wires the handler to the health service
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck answers GET /api/health while the process is serving
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck answers GET /api/health/ready. It is 503 when the verifier
// has no public key or the issuer ledger cannot be reached. Signing and the
// ledger report "disabled" on verify-only installations, which is still ready.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != "ready" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// LivenessCheck answers GET /api/health/live with uptime and runtime stats
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// Version answers GET /api/version with the build info of this binary
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}

// noStore keeps proxies from answering health checks after a key rotation
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
