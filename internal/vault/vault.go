/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package vault is the API-key vault: pending/approved
// key tables keyed by a base64(AES-CBC(json(APIKey))) envelope.
// Grounded on original_source/server/Api.py's ApiKey
// (owner/permissions/validUntil/keyId, toDbForm/fromDbForm) and
// database/APIKeyDatabase.py's pending->approved promotion flow.
package vault

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Restitutor/DiscordTZ/internal/crypto"
)

// Permission bit positions, fixed by the original permission scheme plus the
// supplemented admin/alias surface.
type Permission uint32

const (
	DiscordID        Permission = 1 << 0
	TZBotAlias       Permission = 1 << 1
	MinecraftUUID    Permission = 1 << 2
	UUIDPost         Permission = 1 << 3
	IPAddress        Permission = 1 << 4
	TZOverridesPost  Permission = 1 << 5
	TZOverridesGet   Permission = 1 << 6
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("vault: not found")

// APIKey is the credential envelope stored in either the pending or
// approved table. ValidUntil mirrors the original's string sentinel
// ("INFINITE" means no expiry) rather than a nullable timestamp, since
// that is the wire/storage shape this vault inherits.
type APIKey struct {
	Owner       int64      `json:"owner"`
	Permissions Permission `json:"permissions"`
	ValidUntil  string     `json:"validUntil"`
	KeyID       string     `json:"keyId"`
}

// HasPermissions reports whether key grants every bit in required.
func (k APIKey) HasPermissions(required Permission) bool {
	return k.Permissions&required == required
}

// Encode serializes an APIKey into its storage/wire envelope:
// base64(AES-CBC(json(key), vaultKey)).
func Encode(key APIKey, vaultKey []byte) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	ct, err := crypto.CBCEncrypt(vaultKey, raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decode is Encode's inverse.
func Decode(envelope string, vaultKey []byte) (APIKey, error) {
	ct, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return APIKey{}, err
	}
	raw, err := crypto.CBCDecrypt(vaultKey, ct)
	if err != nil {
		return APIKey{}, err
	}
	var key APIKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return APIKey{}, err
	}
	return key, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys_pending (
	envelope TEXT PRIMARY KEY,
	msg_id   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS api_keys_approved (
	envelope TEXT PRIMARY KEY
);
`

// Vault persists pending/approved key envelopes in a SQLite database,
// sharing internal/store's dual-write primitives would require a
// second driver dependency for no benefit here: durability does not
// require the vault tables to survive a secondary outage the way
// timezone data must, so a single local handle is enough.
type Vault struct {
	db *sql.DB
}

// Open creates the vault tables in db if they are absent and returns a
// Vault backed by db.
func Open(db *sql.DB) (*Vault, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("vault: schema: %w", err)
	}
	return &Vault{db: db}, nil
}

// AddPending inserts a new pending envelope tagged with the external
// message id used to correlate an approval action later.
func (v *Vault) AddPending(ctx context.Context, envelope, msgID string) error {
	_, err := v.db.ExecContext(ctx, `INSERT INTO api_keys_pending (envelope, msg_id) VALUES (?, ?)`, envelope, msgID)
	return err
}

// Promote moves envelope from pending to approved atomically.
func (v *Vault) Promote(ctx context.Context, envelope string) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM api_keys_pending WHERE envelope = ?`, envelope)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO api_keys_approved (envelope) VALUES (?)`, envelope); err != nil {
		return err
	}
	return tx.Commit()
}

// Drop deletes a pending envelope (rejection path).
func (v *Vault) Drop(ctx context.Context, envelope string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM api_keys_pending WHERE envelope = ?`, envelope)
	return err
}

// IsValid reports whether envelope is present in the approved table.
func (v *Vault) IsValid(ctx context.Context, envelope string) (bool, error) {
	var exists int
	err := v.db.QueryRowContext(ctx, `SELECT 1 FROM api_keys_approved WHERE envelope = ?`, envelope).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ByMsgID reverse-looks-up a pending envelope by its external message
// id (used when an approval callback only carries the message id).
func (v *Vault) ByMsgID(ctx context.Context, msgID string) (string, error) {
	var envelope string
	err := v.db.QueryRowContext(ctx, `SELECT envelope FROM api_keys_pending WHERE msg_id = ?`, msgID).Scan(&envelope)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return envelope, nil
}
