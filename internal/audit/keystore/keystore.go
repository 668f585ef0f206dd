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

// Package keystore persists signing keys. KeyStore is the port; FileStore
// and PostgresStore are the two adapters the core ships with.
package keystore

import (
	"context"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// KeyStore is the interface any signing-key persistence backend satisfies.
type KeyStore interface {
	// SaveKey persists a key's metadata and its opaque private-key bytes.
	SaveKey(ctx context.Context, key model.SigningKey) error
	// LoadPrivateKey returns the opaque private-key bytes for keyID.
	LoadPrivateKey(ctx context.Context, keyID string) ([]byte, error)
	// LoadKeyInfo returns the metadata for keyID, without the private bytes.
	LoadKeyInfo(ctx context.Context, keyID string) (model.SigningKey, error)
	// ListKeys returns every key belonging to tenantID.
	ListKeys(ctx context.Context, tenantID string) ([]model.SigningKey, error)
	// DeactivateKey flips a key's IsActive flag to false.
	DeactivateKey(ctx context.Context, keyID string) error
}

// ErrNotFound is returned when a key ID has no corresponding record.
var ErrNotFound = &storeError{"key not found"}

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }
