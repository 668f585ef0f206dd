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

// Package keymanager composes a Signer and a KeyStore into the tenant-facing
// key lifecycle operations: generate, rotate, fetch the active key, build a
// manifest, and check a key id still belongs to its tenant.
package keymanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	auditcrypto "github.com/rubentxu/hodei-audit-trail/internal/audit/crypto"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keystore"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// RootSigner signs a manifest hash with the deployment's root key. A nil
// RootSigner leaves KeyManifest.RootSignature empty, matching the
// placeholder behavior of an un-provisioned root key.
type RootSigner interface {
	SignManifestHash(hash string) ([]byte, error)
}

// Manager is the key lifecycle façade used by the ingestion and digest
// components to obtain signing material.
type Manager struct {
	signer  *auditcrypto.Signer
	store   keystore.KeyStore
	root    RootSigner
	nowFunc func() time.Time
}

// New constructs a Manager. root may be nil.
func New(signer *auditcrypto.Signer, store keystore.KeyStore, root RootSigner) *Manager {
	return &Manager{signer: signer, store: store, root: root, nowFunc: time.Now}
}

// GenerateKey creates a fresh Ed25519 key for tenantID, persists it via the
// configured KeyStore, and returns its public metadata.
func (m *Manager) GenerateKey(ctx context.Context, tenantID string) (model.SigningKey, error) {
	if tenantID == "" {
		return model.SigningKey{}, auditerr.New(auditerr.InvalidArgument, "tenant id must not be empty")
	}

	kp, err := m.signer.GenerateKeypair()
	if err != nil {
		return model.SigningKey{}, auditerr.Wrap(auditerr.Internal, "generate keypair", err)
	}

	now := m.nowFunc()
	key := model.SigningKey{
		ID:               fmt.Sprintf("%s-%s", tenantID, uuid.NewString()),
		TenantID:         tenantID,
		PublicKey:        kp.Public,
		PrivateKeyOpaque: kp.Private,
		CreatedAt:        now,
		ExpiresAt:        now.Add(model.DefaultKeyLifetime),
		IsActive:         true,
		Version:          1,
	}

	if err := m.store.SaveKey(ctx, key); err != nil {
		return model.SigningKey{}, auditerr.Wrap(auditerr.Internal, "save key", err)
	}
	return key, nil
}

// RotateKey deactivates tenantID's current active key, if any, and
// generates a replacement with Version bumped by one.
func (m *Manager) RotateKey(ctx context.Context, tenantID string) (model.SigningKey, error) {
	prev, err := m.GetActiveKey(ctx, tenantID)
	nextVersion := 1
	if err == nil {
		if deactivateErr := m.store.DeactivateKey(ctx, prev.ID); deactivateErr != nil {
			return model.SigningKey{}, auditerr.Wrap(auditerr.Internal, "deactivate previous key", deactivateErr)
		}
		nextVersion = prev.Version + 1
	} else if auditerr.KindOf(err) != auditerr.NotFound {
		return model.SigningKey{}, err
	}

	key, err := m.GenerateKey(ctx, tenantID)
	if err != nil {
		return model.SigningKey{}, err
	}
	key.Version = nextVersion
	if err := m.store.SaveKey(ctx, key); err != nil {
		return model.SigningKey{}, auditerr.Wrap(auditerr.Internal, "save rotated key", err)
	}
	return key, nil
}

// GetActiveKey returns the single key with IsActive set for tenantID. At
// most one key should be active at a time; if the store has none, NotFound
// is returned.
func (m *Manager) GetActiveKey(ctx context.Context, tenantID string) (model.SigningKey, error) {
	keys, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return model.SigningKey{}, auditerr.Wrap(auditerr.Internal, "list keys", err)
	}
	for _, k := range keys {
		if k.IsActive {
			return k, nil
		}
	}
	return model.SigningKey{}, auditerr.New(auditerr.NotFound, "no active key for tenant "+tenantID)
}

// GetManifest builds the publishable view of tenantID's keys, with a
// SHA-256 hash over the sorted key set and, if a RootSigner is configured,
// a signature over that hash.
func (m *Manager) GetManifest(ctx context.Context, tenantID string) (model.KeyManifest, error) {
	keys, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return model.KeyManifest{}, auditerr.Wrap(auditerr.Internal, "list keys", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })

	raw, err := json.Marshal(keys)
	if err != nil {
		return model.KeyManifest{}, auditerr.Wrap(auditerr.Internal, "marshal manifest", err)
	}
	hasher := auditcrypto.NewHasher()
	manifestHash := hasher.HashBytes(raw)

	var rootSig []byte
	if m.root != nil {
		rootSig, err = m.root.SignManifestHash(manifestHash)
		if err != nil {
			return model.KeyManifest{}, auditerr.Wrap(auditerr.Internal, "sign manifest", err)
		}
	}

	return model.KeyManifest{
		Version:       "1.0",
		IssuedAt:      m.nowFunc(),
		Keys:          keys,
		ManifestHash:  manifestHash,
		RootSignature: rootSig,
	}, nil
}

// VerifyKey reports whether keyID belongs to tenantID's key set.
func (m *Manager) VerifyKey(ctx context.Context, tenantID, keyID string) (bool, error) {
	keys, err := m.store.ListKeys(ctx, tenantID)
	if err != nil {
		return false, auditerr.Wrap(auditerr.Internal, "list keys", err)
	}
	for _, k := range keys {
		if k.ID == keyID {
			return true, nil
		}
	}
	return false, nil
}
