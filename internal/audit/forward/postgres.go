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

package forward

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS forwarded_events (
//   event_id   TEXT PRIMARY KEY,
//   tenant_id  TEXT NOT NULL,
//   payload    BYTEA NOT NULL,
//   forwarded_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_forwarded_events_tenant ON forwarded_events(tenant_id);
//
// INSERT ... ON CONFLICT (event_id) DO NOTHING makes redelivery of the same
// event id a no-op, the same idempotent-commit pattern the Redis and Kafka
// adapters use, all of them keyed on the event id.

// PostgresForwarder persists forwarded events into a Postgres table within
// a single transaction per batch.
type PostgresForwarder struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

// NewPostgresForwarder wraps an open *sql.DB. Callers own its lifecycle.
func NewPostgresForwarder(db *sql.DB) *PostgresForwarder {
	return &PostgresForwarder{db: db, defaultTimeout: 10 * time.Second}
}

// ForwardBatch inserts every entry within one transaction, skipping (not
// erroring on) event IDs already present.
func (p *PostgresForwarder) ForwardBatch(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range batch {
		if e.EventID == "" {
			return errors.New("forward: Entry.EventID must be set")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO forwarded_events (event_id, tenant_id, payload) VALUES ($1, $2, $3)
			 ON CONFLICT (event_id) DO NOTHING`,
			e.EventID, e.TenantID, e.Payload); err != nil {
			return fmt.Errorf("insert forwarded_events(%s): %w", e.EventID, err)
		}
	}
	return tx.Commit()
}
