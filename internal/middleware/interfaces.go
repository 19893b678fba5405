package middleware

import (
	"context"

	"odoomaster/internal/license"
)

// LicenseChecker returns the verdict on the locally installed license.
// services.LicenseService satisfies it.
type LicenseChecker interface {
	CheckLicense(ctx context.Context) license.Result
}
