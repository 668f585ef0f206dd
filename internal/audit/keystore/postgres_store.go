/*
Copyright 2025 Hodei Audit Trail Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package keystore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"

	_ "github.com/lib/pq"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS signing_keys (
//   id             TEXT PRIMARY KEY,
//   tenant_id      TEXT NOT NULL,
//   public_key     BYTEA NOT NULL,
//   private_key    BYTEA NOT NULL,
//   created_at     TIMESTAMPTZ NOT NULL,
//   expires_at     TIMESTAMPTZ NOT NULL,
//   is_active      BOOLEAN NOT NULL,
//   version        INT NOT NULL
// );
// CREATE INDEX IF NOT EXISTS idx_signing_keys_tenant ON signing_keys(tenant_id);
//
// SaveKey uses INSERT ... ON CONFLICT (id) DO UPDATE so re-saving the same
// key id (e.g. re-running a migration) is idempotent.

// PostgresStore persists signing keys to a Postgres table using
// database/sql with the lib/pq driver.
type PostgresStore struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresStore wraps an open *sql.DB. Callers own the DB's lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: 10 * time.Second}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || s.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.defaultTimeout)
}

// SaveKey upserts key's metadata and opaque private-key bytes.
func (s *PostgresStore) SaveKey(ctx context.Context, key model.SigningKey) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signing_keys (id, tenant_id, public_key, private_key, created_at, expires_at, is_active, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			public_key = EXCLUDED.public_key,
			private_key = EXCLUDED.private_key,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			version = EXCLUDED.version`,
		key.ID, key.TenantID, key.PublicKey, key.PrivateKeyOpaque,
		key.CreatedAt, key.ExpiresAt, key.IsActive, key.Version)
	return err
}

// LoadPrivateKey returns the opaque private-key bytes for keyID.
func (s *PostgresStore) LoadPrivateKey(ctx context.Context, keyID string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var priv []byte
	err := s.db.QueryRowContext(ctx, `SELECT private_key FROM signing_keys WHERE id = $1`, keyID).Scan(&priv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return priv, err
}

// LoadKeyInfo returns keyID's metadata, without the private-key bytes.
func (s *PostgresStore) LoadKeyInfo(ctx context.Context, keyID string) (model.SigningKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, public_key, created_at, expires_at, is_active, version
		FROM signing_keys WHERE id = $1`, keyID)
	return scanKeyInfo(row)
}

// ListKeys returns every key belonging to tenantID, ordered by version.
func (s *PostgresStore) ListKeys(ctx context.Context, tenantID string) ([]model.SigningKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, public_key, created_at, expires_at, is_active, version
		FROM signing_keys WHERE tenant_id = $1 ORDER BY version`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.SigningKey
	for rows.Next() {
		key, err := scanKeyInfo(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeactivateKey flips is_active to false for keyID.
func (s *PostgresStore) DeactivateKey(ctx context.Context, keyID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE signing_keys SET is_active = false WHERE id = $1`, keyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyInfo(row rowScanner) (model.SigningKey, error) {
	var key model.SigningKey
	err := row.Scan(&key.ID, &key.TenantID, &key.PublicKey, &key.CreatedAt, &key.ExpiresAt, &key.IsActive, &key.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SigningKey{}, ErrNotFound
	}
	return key, err
}
