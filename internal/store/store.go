/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package store is the dual-write primary/secondary data layer.
// Schema and query shapes are carried from
// original_source/database/DataDatabase.py: the `timezones` table
// (user PK, uuid, timezone, alias) and `tz_overrides` table (uuid PK,
// timezone), and its INSERT...ON DUPLICATE KEY UPDATE upsert idiom.
// The primary is SQLite (modernc.org/sqlite, pure Go, no cgo) and the
// optional secondary is MariaDB over github.com/go-sql-driver/mysql's
// MySQL-wire-protocol client.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS timezones (
	user     INTEGER PRIMARY KEY,
	uuid     TEXT,
	timezone TEXT NOT NULL,
	alias    TEXT
);
CREATE TABLE IF NOT EXISTS tz_overrides (
	uuid     TEXT PRIMARY KEY,
	timezone TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS timezones_uuid_idx ON timezones(uuid) WHERE uuid IS NOT NULL;
`

const mariaSchema = `
CREATE TABLE IF NOT EXISTS timezones (
	user     BIGINT PRIMARY KEY,
	uuid     VARCHAR(36) UNIQUE,
	timezone VARCHAR(255) NOT NULL,
	alias    VARCHAR(255)
);
CREATE TABLE IF NOT EXISTS tz_overrides (
	uuid     VARCHAR(36) PRIMARY KEY,
	timezone VARCHAR(255) NOT NULL
);
`

// Binding is one row of the timezones table.
type Binding struct {
	UserID   int64
	UUID     string
	Timezone string
	Alias    string
}

// Store wraps the primary SQLite handle and an optional MariaDB
// secondary. A nil secondary means mutations succeed primary-only.
type Store struct {
	primary   *sql.DB
	secondary *sql.DB
}

// Open opens the SQLite primary at primaryPath and, if secondaryDSN is
// non-empty, dials the MariaDB secondary with the given pool size.
// A secondary that fails to open (e.g. unreachable at startup) is
// treated as absent rather than fatal.
func Open(primaryPath, secondaryDSN string, secondaryPoolSize int) (*Store, error) {
	primary, err := sql.Open("sqlite", primaryPath)
	if err != nil {
		return nil, err
	}
	primary.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline avoids SQLITE_BUSY
	if _, err := primary.Exec(schema); err != nil {
		primary.Close()
		return nil, fmt.Errorf("store: primary schema: %w", err)
	}

	s := &Store{primary: primary}

	if secondaryDSN != "" {
		secondary, err := sql.Open("mysql", secondaryDSN)
		if err != nil {
			return s, nil
		}
		if secondaryPoolSize > 0 {
			secondary.SetMaxOpenConns(secondaryPoolSize)
		}
		if err := secondary.Ping(); err != nil {
			secondary.Close()
			return s, nil
		}
		for _, stmt := range strings.Split(mariaSchema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := secondary.Exec(stmt); err != nil {
				secondary.Close()
				return s, nil
			}
		}
		s.secondary = secondary
	}

	return s, nil
}

// Close closes both handles.
func (s *Store) Close() error {
	var err error
	if s.secondary != nil {
		if e := s.secondary.Close(); e != nil {
			err = e
		}
	}
	if e := s.primary.Close(); e != nil {
		err = e
	}
	return err
}

// HasSecondary reports whether a live secondary connection is present.
func (s *Store) HasSecondary() bool { return s.secondary != nil }

// Primary exposes the underlying SQLite handle so other local-only
// tables (internal/vault's pending/approved sets) can share the same
// database file instead of opening a second one.
func (s *Store) Primary() *sql.DB { return s.primary }

// SetTimezone upserts (userId, timezone, alias), normalizing spaces in
// the timezone to underscores.
func (s *Store) SetTimezone(ctx context.Context, userID int64, timezone, alias string) error {
	timezone = strings.ReplaceAll(timezone, " ", "_")
	const q = `INSERT INTO timezones (user, timezone, alias) VALUES (?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET timezone = excluded.timezone, alias = excluded.alias`
	if _, err := s.primary.ExecContext(ctx, q, userID, timezone, alias); err != nil {
		return fmt.Errorf("store: primary SetTimezone: %w", err)
	}
	if s.secondary != nil {
		const mq = `INSERT INTO timezones (user, timezone, alias) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE timezone = VALUES(timezone), alias = VALUES(alias)`
		if _, err := s.secondary.ExecContext(ctx, mq, userID, timezone, alias); err != nil {
			return fmt.Errorf("store: secondary SetTimezone: %w", err)
		}
	}
	return nil
}

// AssignUUID binds uuid to userId (assignUUIDToUserId), used by
// the link-code claim flow.
func (s *Store) AssignUUID(ctx context.Context, userID int64, uuid, timezone, alias string) error {
	timezone = strings.ReplaceAll(timezone, " ", "_")
	const q = `INSERT INTO timezones (user, uuid, timezone, alias) VALUES (?, ?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET uuid = excluded.uuid, timezone = excluded.timezone, alias = excluded.alias`
	if _, err := s.primary.ExecContext(ctx, q, userID, uuid, timezone, alias); err != nil {
		return fmt.Errorf("store: primary AssignUUID: %w", err)
	}
	if s.secondary != nil {
		const mq = `INSERT INTO timezones (user, uuid, timezone, alias) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE uuid = VALUES(uuid), timezone = VALUES(timezone), alias = VALUES(alias)`
		if _, err := s.secondary.ExecContext(ctx, mq, userID, uuid, timezone, alias); err != nil {
			return fmt.Errorf("store: secondary AssignUUID: %w", err)
		}
	}
	return nil
}

func scanOneString(row *sql.Row) (string, error) {
	var v string
	switch err := row.Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	return v, nil
}

// TimezoneByUserID reads the effective timezone for userId: the
// overrides table shadows timezones when the bound UUID has an
// override set.
func (s *Store) TimezoneByUserID(ctx context.Context, userID int64) (string, error) {
	var uuid sql.NullString
	var tz string
	row := s.primary.QueryRowContext(ctx, `SELECT uuid, timezone FROM timezones WHERE user = ?`, userID)
	if err := row.Scan(&uuid, &tz); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if uuid.Valid {
		if ov, err := s.TzOverrideByUUID(ctx, uuid.String); err == nil {
			return ov, nil
		}
	}
	return tz, nil
}

func (s *Store) TimezoneByUUID(ctx context.Context, uuid string) (string, error) {
	if ov, err := s.TzOverrideByUUID(ctx, uuid); err == nil {
		return ov, nil
	}
	row := s.primary.QueryRowContext(ctx, `SELECT timezone FROM timezones WHERE uuid = ?`, uuid)
	return scanOneString(row)
}

func (s *Store) UserIDByUUID(ctx context.Context, uuid string) (int64, error) {
	var v int64
	row := s.primary.QueryRowContext(ctx, `SELECT user FROM timezones WHERE uuid = ?`, uuid)
	switch err := row.Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	}
	return v, nil
}

func (s *Store) UUIDByUserID(ctx context.Context, userID int64) (string, error) {
	var v sql.NullString
	row := s.primary.QueryRowContext(ctx, `SELECT uuid FROM timezones WHERE user = ?`, userID)
	switch err := row.Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	if !v.Valid {
		return "", ErrNotFound
	}
	return v.String, nil
}

func (s *Store) AliasByUserID(ctx context.Context, userID int64) (string, error) {
	var v sql.NullString
	row := s.primary.QueryRowContext(ctx, `SELECT alias FROM timezones WHERE user = ?`, userID)
	switch err := row.Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	if !v.Valid {
		return "", ErrNotFound
	}
	return v.String, nil
}

func (s *Store) UserIDByAlias(ctx context.Context, alias string) (int64, error) {
	var v int64
	row := s.primary.QueryRowContext(ctx, `SELECT user FROM timezones WHERE alias = ?`, alias)
	switch err := row.Scan(&v); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	}
	return v, nil
}

func (s *Store) TimezoneByAlias(ctx context.Context, alias string) (string, error) {
	row := s.primary.QueryRowContext(ctx, `SELECT timezone FROM timezones WHERE alias = ?`, alias)
	return scanOneString(row)
}

// SetTzOverride upserts a UUID-keyed override (TZOverridesPost /
// original's addTzOverride).
func (s *Store) SetTzOverride(ctx context.Context, uuid, timezone string) error {
	timezone = strings.ReplaceAll(timezone, " ", "_")
	const q = `INSERT INTO tz_overrides (uuid, timezone) VALUES (?, ?)
		ON CONFLICT(uuid) DO UPDATE SET timezone = excluded.timezone`
	if _, err := s.primary.ExecContext(ctx, q, uuid, timezone); err != nil {
		return fmt.Errorf("store: primary SetTzOverride: %w", err)
	}
	if s.secondary != nil {
		const mq = `INSERT INTO tz_overrides (uuid, timezone) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE timezone = VALUES(timezone)`
		if _, err := s.secondary.ExecContext(ctx, mq, uuid, timezone); err != nil {
			return fmt.Errorf("store: secondary SetTzOverride: %w", err)
		}
	}
	return nil
}

func (s *Store) TzOverrideByUUID(ctx context.Context, uuid string) (string, error) {
	row := s.primary.QueryRowContext(ctx, `SELECT timezone FROM tz_overrides WHERE uuid = ?`, uuid)
	return scanOneString(row)
}

func (s *Store) AllTzOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := s.primary.QueryContext(ctx, `SELECT uuid, timezone FROM tz_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var uuid, tz string
		if err := rows.Scan(&uuid, &tz); err != nil {
			return nil, err
		}
		out[uuid] = tz
	}
	return out, rows.Err()
}

// RemoveTzOverride deletes a UUID's override row. The reconciler never
// deletes, but an ordinary user-triggered delete still propagates to
// the secondary through this dual-write path.
func (s *Store) RemoveTzOverride(ctx context.Context, uuid string) error {
	if _, err := s.primary.ExecContext(ctx, `DELETE FROM tz_overrides WHERE uuid = ?`, uuid); err != nil {
		return fmt.Errorf("store: primary RemoveTzOverride: %w", err)
	}
	if s.secondary != nil {
		if _, err := s.secondary.ExecContext(ctx, `DELETE FROM tz_overrides WHERE uuid = ?`, uuid); err != nil {
			return fmt.Errorf("store: secondary RemoveTzOverride: %w", err)
		}
	}
	return nil
}

// Reconcile runs one pass of the 15-minute reconciliation sweep:
// enumerate primary rows by primary key and insert/update any
// secondary row found missing or differing. It never deletes from the
// secondary.
func (s *Store) Reconcile(ctx context.Context) error {
	if s.secondary == nil {
		return nil
	}
	if err := s.reconcileTimezones(ctx); err != nil {
		return err
	}
	return s.reconcileOverrides(ctx)
}

func (s *Store) reconcileTimezones(ctx context.Context) error {
	rows, err := s.primary.QueryContext(ctx, `SELECT user, uuid, timezone, alias FROM timezones`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		var uuid, alias sql.NullString
		if err := rows.Scan(&b.UserID, &uuid, &b.Timezone, &alias); err != nil {
			return err
		}
		b.UUID = uuid.String
		b.Alias = alias.String
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, b := range bindings {
		const mq = `INSERT INTO timezones (user, uuid, timezone, alias) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE uuid = VALUES(uuid), timezone = VALUES(timezone), alias = VALUES(alias)`
		if _, err := s.secondary.ExecContext(ctx, mq, b.UserID, nullIfEmpty(b.UUID), b.Timezone, nullIfEmpty(b.Alias)); err != nil {
			return fmt.Errorf("store: reconcile timezones user=%d: %w", b.UserID, err)
		}
	}
	return nil
}

func (s *Store) reconcileOverrides(ctx context.Context) error {
	overrides, err := s.AllTzOverrides(ctx)
	if err != nil {
		return err
	}
	for uuid, tz := range overrides {
		const mq = `INSERT INTO tz_overrides (uuid, timezone) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE timezone = VALUES(timezone)`
		if _, err := s.secondary.ExecContext(ctx, mq, uuid, tz); err != nil {
			return fmt.Errorf("store: reconcile tz_overrides uuid=%s: %w", uuid, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// RunReconciler blocks, running Reconcile every interval until ctx is
// cancelled, using the same ticker+select idiom as filewatch.routine.
func (s *Store) RunReconciler(ctx context.Context, interval time.Duration, onErr func(error)) {
	tckr := time.NewTicker(interval)
	defer tckr.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tckr.C:
			if err := s.Reconcile(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
