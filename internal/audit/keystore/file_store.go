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
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// keyInfoFile is the on-disk JSON shape for a key's metadata sibling file.
// Kept separate from model.SigningKey so the private key bytes never land
// in the JSON file and the wire encoding (hex public key, unix millis) is
// decoupled from the in-process type.
type keyInfoFile struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	PublicKey string `json:"public_key"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	IsActive  bool   `json:"is_active"`
	Version   int    `json:"version"`
}

// FileStore persists keys as a pair of sibling files per key ID under a
// base directory: "<id>.key" holds the opaque private-key bytes, "<id>.json"
// holds the metadata. It serializes writers with a single mutex; reads
// proceed concurrently with each other but not with a write.
//
// This is a development/testing backend. Production deployments should
// prefer PostgresStore or route the master key through a KMS before
// persisting the ".key" file's contents.
type FileStore struct {
	baseDir string

	mu sync.RWMutex
}

// NewFileStore constructs a FileStore rooted at baseDir. The directory is
// created lazily on first write.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) keyPath(keyID string) string {
	return filepath.Join(s.baseDir, keyID+".key")
}

func (s *FileStore) infoPath(keyID string) string {
	return filepath.Join(s.baseDir, keyID+".json")
}

// SaveKey writes both sibling files for key. The private-key bytes are
// written as-is: callers that need encryption-at-rest wrap FileStore or
// pre-encrypt PrivateKeyOpaque before calling SaveKey.
func (s *FileStore) SaveKey(_ context.Context, key model.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
		return err
	}

	if err := os.WriteFile(s.keyPath(key.ID), key.PrivateKeyOpaque, 0o600); err != nil {
		return err
	}

	info := keyInfoFile{
		ID:        key.ID,
		TenantID:  key.TenantID,
		PublicKey: hex.EncodeToString(key.PublicKey),
		CreatedAt: key.CreatedAt.UnixMilli(),
		ExpiresAt: key.ExpiresAt.UnixMilli(),
		IsActive:  key.IsActive,
		Version:   key.Version,
	}
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.infoPath(key.ID), raw, 0o600)
}

// LoadPrivateKey returns the raw bytes of the "<id>.key" file.
func (s *FileStore) LoadPrivateKey(_ context.Context, keyID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.keyPath(keyID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return os.ReadFile(path)
}

// LoadKeyInfo reads and decodes the "<id>.json" sibling file.
func (s *FileStore) LoadKeyInfo(_ context.Context, keyID string) (model.SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadInfoLocked(keyID)
}

func (s *FileStore) loadInfoLocked(keyID string) (model.SigningKey, error) {
	path := s.infoPath(keyID)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.SigningKey{}, ErrNotFound
		}
		return model.SigningKey{}, err
	}

	var info keyInfoFile
	if err := json.Unmarshal(raw, &info); err != nil {
		return model.SigningKey{}, err
	}
	pub, err := hex.DecodeString(info.PublicKey)
	if err != nil {
		return model.SigningKey{}, err
	}
	return decodeKeyInfo(info, pub), nil
}

// ListKeys scans the base directory for "*.json" files belonging to
// tenantID. Order is directory-read order, not creation order.
func (s *FileStore) ListKeys(_ context.Context, tenantID string) ([]model.SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []model.SigningKey
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		keyID := e.Name()[:len(e.Name())-len(".json")]
		info, err := s.loadInfoLocked(keyID)
		if err != nil {
			return nil, err
		}
		if info.TenantID == tenantID {
			keys = append(keys, info)
		}
	}
	return keys, nil
}

// DeactivateKey flips IsActive to false and rewrites the info file.
func (s *FileStore) DeactivateKey(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.loadInfoLocked(keyID)
	if err != nil {
		return err
	}
	info.IsActive = false

	fileInfo := keyInfoFile{
		ID:        info.ID,
		TenantID:  info.TenantID,
		PublicKey: hex.EncodeToString(info.PublicKey),
		CreatedAt: info.CreatedAt.UnixMilli(),
		ExpiresAt: info.ExpiresAt.UnixMilli(),
		IsActive:  false,
		Version:   info.Version,
	}
	raw, err := json.MarshalIndent(fileInfo, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.infoPath(keyID), raw, 0o600)
}
