package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return db
}

func sampleLicense(id, hardwareID string) *IssuedLicense {
	return &IssuedLicense{
		LicenseID:  id,
		Plan:       "professional",
		IssuedTo:   "user@example.com",
		HardwareID: hardwareID,
		ExpiresAt:  "2030-01-01T00:00:00Z",
		IssuedAt:   "2026-01-15T12:00:00Z",
		Bundle:     `{"license_id":"` + id + `"}`,
		CreatedAt:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestLicenseRepository_CreateFind(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(newTestDB(t))

	id, err := repo.Create(ctx, sampleLicense("lic-1", "aa11bb22cc33dd44"))
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := repo.FindByLicenseID(ctx, "lic-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "professional", got.Plan)
	assert.Equal(t, "aa11bb22cc33dd44", got.HardwareID)
	assert.Equal(t, `{"license_id":"lic-1"}`, got.Bundle)
	assert.False(t, got.Revoked)
	assert.Nil(t, got.RevokedAt)
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))

	missing, err := repo.FindByLicenseID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLicenseRepository_DuplicateLicenseID(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(newTestDB(t))

	_, err := repo.Create(ctx, sampleLicense("dup", ""))
	require.NoError(t, err)
	_, err = repo.Create(ctx, sampleLicense("dup", ""))
	assert.Error(t, err)
}

func TestLicenseRepository_MarkRevoked(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(newTestDB(t))
	_, err := repo.Create(ctx, sampleLicense("lic-r", ""))
	require.NoError(t, err)

	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	changed, err := repo.MarkRevoked(ctx, "lic-r", "refund", at)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := repo.FindByLicenseID(ctx, "lic-r")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, "refund", got.RevokedReason)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(at))

	changed, err = repo.MarkRevoked(ctx, "lic-r", "again", at)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkRevoked(ctx, "unknown", "", at)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestLicenseRepository_Lists(t *testing.T) {
	ctx := context.Background()
	repo := NewLicenseRepository(newTestDB(t))

	for _, l := range []*IssuedLicense{
		sampleLicense("a", "dev-1"),
		sampleLicense("b", "dev-2"),
		sampleLicense("c", "dev-1"),
	} {
		_, err := repo.Create(ctx, l)
		require.NoError(t, err)
	}

	bound, err := repo.ListByHardwareID(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, bound, 2)
	assert.Equal(t, "c", bound[0].LicenseID)
	assert.Equal(t, "a", bound[1].LicenseID)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].LicenseID)

	none, err := repo.ListByHardwareID(ctx, "dev-9")
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestInitDB_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "issued_licenses.db")

	db, err := InitDB(ctx, path)
	require.NoError(t, err)
	_, err = NewLicenseRepository(db).Create(ctx, sampleLicense("persist", ""))
	require.NoError(t, err)
	require.NoError(t, CloseDB(db))

	reopened, err := InitDB(ctx, path)
	require.NoError(t, err)
	defer CloseDB(reopened)

	got, err := NewLicenseRepository(reopened).FindByLicenseID(ctx, "persist")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
