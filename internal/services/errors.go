package services

import "errors"

// Service errors that are not part of the license taxonomy
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrLicenseNotFound    = errors.New("license not found in ledger")
	ErrLedgerUnavailable  = errors.New("license ledger not configured")
	ErrLocalStoreDisabled = errors.New("local license store not configured")
)
