// Package services implements the licensing business layer shared by the
// HTTP server and the omlicense command.
//
// # Services
//
// LicenseService wraps the license core:
//
//   - Issue signs a bundle with the Authority and records it in the ledger
//   - Revoke adds an entry to the revocation registry and flags the ledger row
//   - Verify checks arbitrary input against a supplied hardware id
//   - Status, Activate and Deactivate manage the license installed on this machine
//
// HealthService reports liveness and whether the verifier, the signing key
// and the ledger are usable.
//
// Collaborators are passed in through LicenseDeps. Any of Authority, Ledger
// and Store may be nil; the operations that need them then fail with
// ErrSigningUnavailable, ErrLedgerUnavailable or ErrLocalStoreDisabled.
//
// # Errors
//
// Failures carry the sentinels of odoomaster/internal/errors so that the
// transport layer can map them to problem details with errors.Is.
package services
