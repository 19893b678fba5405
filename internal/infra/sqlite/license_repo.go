package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IssuedLicense is one ledger row. Bundle holds the exact file that was
// handed out.
type IssuedLicense struct {
	ID            int64
	LicenseID     string
	Plan          string
	IssuedTo      string
	HardwareID    string
	ExpiresAt     string
	IssuedAt      string
	Bundle        string
	Revoked       bool
	RevokedReason string
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// LicenseRepository handles issued license persistence
type LicenseRepository struct {
	db *sql.DB
}

func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// Create inserts an issued license and returns the row id
func (r *LicenseRepository) Create(ctx context.Context, l *IssuedLicense) (int64, error) {
	const q = `
		INSERT INTO issued_licenses (license_id, plan, issued_to, hardware_id, expires_at, issued_at, bundle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q, l.LicenseID, l.Plan, l.IssuedTo, l.HardwareID, l.ExpiresAt, l.IssuedAt, l.Bundle, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert issued license: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

const selectColumns = `
	SELECT id, license_id, plan, issued_to, hardware_id, expires_at, issued_at, bundle,
		revoked, revoked_reason, revoked_at, created_at
	FROM issued_licenses
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*IssuedLicense, error) {
	var (
		l         IssuedLicense
		revokedAt sql.NullTime
	)
	err := row.Scan(&l.ID, &l.LicenseID, &l.Plan, &l.IssuedTo, &l.HardwareID, &l.ExpiresAt, &l.IssuedAt,
		&l.Bundle, &l.Revoked, &l.RevokedReason, &revokedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		l.RevokedAt = &at
	}
	return &l, nil
}

// FindByLicenseID returns the row for licenseID, or nil when there is none
func (r *LicenseRepository) FindByLicenseID(ctx context.Context, licenseID string) (*IssuedLicense, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE license_id = ? LIMIT 1`, licenseID)
	l, err := scanLicense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan issued license: %w", err)
	}
	return l, nil
}

// ListByHardwareID returns every license bound to hardwareID, newest first
func (r *LicenseRepository) ListByHardwareID(ctx context.Context, hardwareID string) ([]*IssuedLicense, error) {
	return r.list(ctx, selectColumns+` WHERE hardware_id = ? ORDER BY id DESC`, hardwareID)
}

// ListRecent returns up to limit licenses, newest first
func (r *LicenseRepository) ListRecent(ctx context.Context, limit int) ([]*IssuedLicense, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
}

func (r *LicenseRepository) list(ctx context.Context, q string, args ...any) ([]*IssuedLicense, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query issued licenses: %w", err)
	}
	defer rows.Close()

	var out []*IssuedLicense
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issued license: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issued licenses: %w", err)
	}
	return out, nil
}

// MarkRevoked flags licenseID as revoked. It reports false when no row
// matched or the row was already revoked.
func (r *LicenseRepository) MarkRevoked(ctx context.Context, licenseID, reason string, at time.Time) (bool, error) {
	const q = `
		UPDATE issued_licenses
		SET revoked = 1, revoked_reason = ?, revoked_at = ?
		WHERE license_id = ? AND revoked = 0
	`
	res, err := r.db.ExecContext(ctx, q, reason, at, licenseID)
	if err != nil {
		return false, fmt.Errorf("update issued license: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
