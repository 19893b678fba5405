// Package http implements the chi handlers of the licensing daemon.
//
// Handlers stay thin: they decode and validate the request, call
// services.LicenseService and render the result. Failures are rendered as
// RFC 7807 problem details through errors.ErrorHandler; license failures map
// to the problem types of errors.LicenseProblem.
//
// Routes, as mounted by the app package:
//
//	GET    /api/health, /api/health/ready, /api/health/live, /api/version
//	GET    /metrics
//	POST   /api/admin/licenses            issue (X-API-Key)
//	GET    /api/admin/licenses/{id}       ledger entry (X-API-Key)
//	POST   /api/admin/revocations         revoke (X-API-Key)
//	POST   /api/licenses/verify           verify against a hardware id
//	GET    /api/license/status            local license
//	POST   /api/license/activate
//	DELETE /api/license
//	GET    /api/license/hardware-id
//	GET    /api/app/entitlement           behind the license gate
//
// User-facing reasons are localized from Accept-Language or ?lang=.
package http
