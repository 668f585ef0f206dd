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

// Package main is the digest worker entry point: it runs the periodic
// hash-and-sign cycle over each configured tenant's log segments, serving
// Crypto service's VerifyDigest/GetPublicKeys/RotateKey/ListDigests
// operations over HTTP on AUDIT_CRYPTO_ADDR. Digests are produced only by
// the periodic cycle; there is no HTTP operation that generates one.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	auditcrypto "github.com/rubentxu/hodei-audit-trail/internal/audit/crypto"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/digest"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keymanager"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keystore"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/shutdown"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cryptoAddr := flag.String("crypto_addr", envOr("AUDIT_CRYPTO_ADDR", ":8082"), "Crypto service listen address")
	logsDir := flag.String("logs_dir", "./audit-logs", "Base directory holding per-tenant log segment files")
	keysDir := flag.String("keys_dir", "./audit-keys", "Base directory the file key store persists into")
	window := flag.Duration("window", time.Hour, "Span of log history each digest cycle covers")
	interval := flag.Duration("interval", 5*time.Minute, "How often the digest worker runs a cycle per tenant")
	cycleTimeout := flag.Duration("cycle_timeout", time.Minute, "Per-cycle timeout; an exceeded cycle is abandoned without touching the chain")
	tenants := flag.String("tenants", "", "Comma-separated tenant IDs to run the digest cycle for")
	shutdownTimeout := flag.Duration("shutdown_timeout", 30*time.Second, "Overall budget for draining components on shutdown")
	forceShutdownDelay := flag.Duration("force_shutdown_delay", 5*time.Second, "Extra delay after drain completes before the process exits")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	store := keystore.NewFileStore(*keysDir)
	signer := auditcrypto.NewSigner()
	keys := keymanager.New(signer, store, nil)
	hasher := auditcrypto.NewHasher()
	chain := digest.NewChain()

	worker := digest.NewWorker(hasher, keys, chain, digest.WorkerConfig{
		LogsDir:  *logsDir,
		Window:   *window,
		Interval: *interval,
		Timeout:  *cycleTimeout,
	})

	tenantIDs := splitTenants(*tenants)
	for _, tenantID := range tenantIDs {
		worker.Start(tenantID)
	}
	logger.Info("digest worker started", zap.Strings("tenants", tenantIDs))

	coordinator := shutdown.New(shutdown.Config{
		ShutdownTimeout:    *shutdownTimeout,
		ForceShutdownDelay: *forceShutdownDelay,
	}, logger)
	coordinator.AddComponent(shutdown.NewComponent("digest-worker", func(context.Context) error {
		worker.Stop()
		return nil
	}))

	handler := newCryptoHandler(keys, chain)
	httpServer := &http.Server{Addr: *cryptoAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	coordinator.AddComponent(shutdown.NewComponent("crypto-http", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	}))

	go func() {
		logger.Info("crypto service listening", zap.String("addr", *cryptoAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("crypto service exited", zap.Error(err))
		}
	}()

	shutdown.Run(context.Background(), coordinator)
	logger.Info("exiting")
}

func splitTenants(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// newCryptoHandler builds the Crypto service's HTTP surface: GetPublicKeys,
// RotateKey, ListDigests, VerifyDigest.
func newCryptoHandler(keys *keymanager.Manager, chain *digest.Chain) http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/tenants/{tenantID}/keys", func(w http.ResponseWriter, req *http.Request) {
		tenantID := chi.URLParam(req, "tenantID")
		manifest, err := keys.GetManifest(req.Context(), tenantID)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, manifestView(manifest))
	})

	r.Post("/v1/tenants/{tenantID}/keys/rotate", func(w http.ResponseWriter, req *http.Request) {
		tenantID := chi.URLParam(req, "tenantID")
		key, err := keys.RotateKey(req.Context(), tenantID)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, publicKeyResponse{
			ID:        key.ID,
			TenantID:  key.TenantID,
			PublicKey: hex.EncodeToString(key.PublicKey),
			IsActive:  key.IsActive,
		})
	})

	r.Get("/v1/tenants/{tenantID}/digests", func(w http.ResponseWriter, req *http.Request) {
		tenantID := chi.URLParam(req, "tenantID")
		digests := chain.ListDigests(tenantID, time.Time{}, time.Time{})
		writeJSON(w, http.StatusOK, digests)
	})

	r.Get("/v1/digests/{digestID}/verify", func(w http.ResponseWriter, req *http.Request) {
		digestID := chi.URLParam(req, "digestID")
		writeJSON(w, http.StatusOK, map[string]bool{"valid": chain.VerifyDigest(digestID)})
	})

	return r
}

type publicKeyResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	PublicKey string `json:"public_key"`
	IsActive  bool   `json:"is_active"`
}

type manifestResponse struct {
	Version      string              `json:"version"`
	IssuedAt     time.Time           `json:"issued_at"`
	Keys         []publicKeyResponse `json:"keys"`
	ManifestHash string              `json:"manifest_hash"`
}

// manifestView strips PrivateKeyOpaque out of the manifest: GetPublicKeys
// must never put signing-key material on the wire.
func manifestView(m model.KeyManifest) manifestResponse {
	keys := make([]publicKeyResponse, len(m.Keys))
	for i, k := range m.Keys {
		keys[i] = publicKeyResponse{
			ID:        k.ID,
			TenantID:  k.TenantID,
			PublicKey: hex.EncodeToString(k.PublicKey),
			IsActive:  k.IsActive,
		}
	}
	return manifestResponse{
		Version:      m.Version,
		IssuedAt:     m.IssuedAt,
		Keys:         keys,
		ManifestHash: m.ManifestHash,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
