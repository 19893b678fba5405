package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/text/language"

	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/license"
	"odoomaster/internal/middleware"
	"odoomaster/internal/revocation"
	"odoomaster/internal/services"
	api "odoomaster/pkg/contracts/api/v1"
	"odoomaster/pkg/contracts/domain"
)

// GateInvalidator is told when the local license changed
type GateInvalidator interface {
	Invalidate()
}

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service      services.LicenseService
	validator    *middleware.RequestValidator
	errorHandler *apierrors.ErrorHandler
	gate         GateInvalidator
	logger       *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, validator *middleware.RequestValidator, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:      service,
		validator:    validator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// WithGate makes activation and deactivation drop the gate's memoized verdict
func (h *LicenseHandler) WithGate(gate GateInvalidator) *LicenseHandler {
	h.gate = gate
	return h
}

// AdminRoutes are mounted under /api/admin behind API-key auth
func (h *LicenseHandler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/licenses", h.Issue)
	r.Get("/licenses/{id}", h.GetLedgerEntry)
	r.Post("/revocations", h.Revoke)
	return r
}

// LocalRoutes manage the license of this installation, mounted under /api/license
func (h *LicenseHandler) LocalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	r.Post("/activate", h.Activate)
	r.Delete("/", h.Deactivate)
	r.Get("/hardware-id", h.GetHardwareID)
	return r
}

// Issue handles POST /api/admin/licenses. With ?download=1 the bundle is
// returned as a .oml attachment instead of the JSON envelope.
func (h *LicenseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req api.IssueLicenseRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	issued, err := h.service.Issue(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if wantsDownload(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", issued.FileName))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(issued.Bundle)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, issued)
}

// GetLedgerEntry handles GET /api/admin/licenses/{id}
func (h *LicenseHandler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.LedgerEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, entry)
}

// Revoke handles POST /api/admin/revocations. 201 when an entry was
// written, 200 when it was already present.
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req api.RevokeLicenseRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Revoke(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if result.Added {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, result)
}

// Verify handles POST /api/licenses/verify. An invalid license is a
// normal 200 answer with ok=false.
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyLicenseRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result := h.service.Verify(r.Context(), req, requestLanguage(r))
	h.logger.InfoContext(r.Context(), "license verified",
		slog.String("code", result.Code),
		slog.String("license_id", result.LicenseID),
		slog.Bool("ok", result.OK))
	render.JSON(w, r, result)
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status(r.Context(), requestLanguage(r)))
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req api.ActivateLicenseRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.service.Activate(r.Context(), req.License, requestLanguage(r))
	if h.gate != nil {
		h.gate.Invalidate()
	}
	if err != nil {
		if errors.Is(err, services.ErrLocalStoreDisabled) {
			h.handleError(w, r, err)
			return
		}
		h.renderLicenseFailure(w, r, err, status.VerificationResult)
		return
	}

	render.JSON(w, r, status)
}

// Deactivate handles DELETE /api/license
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	err := h.service.Deactivate(r.Context())
	if h.gate != nil {
		h.gate.Invalidate()
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// GetHardwareID handles GET /api/license/hardware-id
func (h *LicenseHandler) GetHardwareID(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HardwareInfo(r.Context()))
}

// Entitlement handles GET /api/app/entitlement behind the license gate and
// reports what the admitted license grants
func (h *LicenseHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.GateResult(r.Context())
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.ErrLicenseNotActivated)
		return
	}
	render.JSON(w, r, services.ToVerificationResult(res, requestLanguage(r)))
}

// handleError maps service errors onto problem responses
func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case services.IsNotFound(err):
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("license"))
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, revocation.ErrEmptyEntry):
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
	case errors.Is(err, services.ErrLedgerUnavailable), errors.Is(err, services.ErrLocalStoreDisabled):
		h.errorHandler.HandleError(w, r, apierrors.Unavailable(err.Error()))
	case errors.Is(err, apierrors.ErrEncoding):
		h.renderLicenseFailure(w, r, err, domain.VerificationResult{Reason: err.Error()})
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}

// renderLicenseFailure answers with the license problem for err, using the
// localized reason as detail
func (h *LicenseHandler) renderLicenseFailure(w http.ResponseWriter, r *http.Request, err error, result domain.VerificationResult) {
	problem, ok := apierrors.LicenseProblem(err, result.Reason, r.URL.Path)
	if !ok {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.WarnContext(r.Context(), "license request refused",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
		slog.String("code", result.Code))

	if result.Code != "" {
		problem.WithExtension("code", result.Code)
	}
	if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
		problem.WithExtension("trace_id", reqID)
	}
	render.Render(w, r, problem)
}

func requestLanguage(r *http.Request) language.Tag {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return license.MatchLanguage(lang)
	}
	return license.MatchLanguage(r.Header.Get("Accept-Language"))
}

func wantsDownload(r *http.Request) bool {
	switch r.URL.Query().Get("download") {
	case "1", "true":
		return true
	}
	return false
}
