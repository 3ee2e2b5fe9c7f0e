package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// These tests exercise the primary-only degraded mode: no
// secondary DSN is configured, so dual-write reduces to writing
// through SQLite alone. Exercising the MariaDB half requires a live
// server and is out of scope for a package test.

func open(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primary.sqlite3")
	s, err := Open(path, "", 0)
	require.NoError(t, err)
	require.False(t, s.HasSecondary())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndReadTimezone(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	require.NoError(t, s.SetTimezone(ctx, 42, "America/New York", "bob"))
	tz, err := s.TimezoneByUserID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "America/New_York", tz)

	alias, err := s.AliasByUserID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "bob", alias)
}

func TestTimezoneByUserIDNotFound(t *testing.T) {
	s := open(t)
	_, err := s.TimezoneByUserID(context.Background(), 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssignAndLookupUUID(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	uuid := "11111111-2222-3333-4444-555555555555"

	require.NoError(t, s.AssignUUID(ctx, 7, uuid, "UTC", "alice"))

	got, err := s.UUIDByUserID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, uuid, got)

	userID, err := s.UserIDByUUID(ctx, uuid)
	require.NoError(t, err)
	require.EqualValues(t, 7, userID)

	tz, err := s.TimezoneByUUID(ctx, uuid)
	require.NoError(t, err)
	require.Equal(t, "UTC", tz)
}

func TestOverrideShadowsTimezone(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	uuid := "11111111-2222-3333-4444-555555555555"

	require.NoError(t, s.AssignUUID(ctx, 7, uuid, "UTC", ""))
	require.NoError(t, s.SetTzOverride(ctx, uuid, "Europe/Paris"))

	tz, err := s.TimezoneByUserID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Europe/Paris", tz, "override must shadow the base timezone")

	require.NoError(t, s.RemoveTzOverride(ctx, uuid))
	tz, err = s.TimezoneByUserID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "UTC", tz)
}

func TestAliasLookups(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	require.NoError(t, s.SetTimezone(ctx, 1, "UTC", "captain"))

	userID, err := s.UserIDByAlias(ctx, "captain")
	require.NoError(t, err)
	require.EqualValues(t, 1, userID)

	tz, err := s.TimezoneByAlias(ctx, "captain")
	require.NoError(t, err)
	require.Equal(t, "UTC", tz)
}

func TestReconcileNoOpWithoutSecondary(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Reconcile(context.Background()))
}
