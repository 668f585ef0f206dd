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

// Command audit-keyctl is an operator CLI over the key manager: generate,
// rotate, and inspect a tenant's signing keys against a file-backed key
// store, without standing up the Crypto service.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	auditcrypto "github.com/rubentxu/hodei-audit-trail/internal/audit/crypto"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keymanager"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keystore"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: audit-keyctl [-keys_dir DIR] <generate|rotate|list|verify> <tenant_id> [key_id]

  generate <tenant_id>            create the tenant's first signing key
  rotate   <tenant_id>            deactivate the active key and generate a new one
  list     <tenant_id>            list all keys for the tenant
  verify   <tenant_id> <key_id>   report whether key_id exists in the tenant's key set`)
}

func main() {
	keysDir := flag.String("keys_dir", "./audit-keys", "Base directory the file key store persists into")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, tenantID := args[0], args[1]

	store := keystore.NewFileStore(*keysDir)
	signer := auditcrypto.NewSigner()
	manager := keymanager.New(signer, store, nil)
	ctx := context.Background()

	var err error
	switch cmd {
	case "generate":
		var key model.SigningKey
		key, err = manager.GenerateKey(ctx, tenantID)
		if err == nil {
			printKey(key)
		}
	case "rotate":
		var key model.SigningKey
		key, err = manager.RotateKey(ctx, tenantID)
		if err == nil {
			printKey(key)
		}
	case "list":
		err = listKeys(ctx, manager, tenantID)
	case "verify":
		if len(args) < 3 {
			usage()
			os.Exit(2)
		}
		err = verifyKey(ctx, manager, tenantID, args[2])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "audit-keyctl: %v\n", err)
		os.Exit(1)
	}
}

func printKey(key model.SigningKey) {
	fmt.Printf("id=%s tenant=%s public_key=%s created_at=%s expires_at=%s active=%t\n",
		key.ID, key.TenantID, hex.EncodeToString(key.PublicKey),
		key.CreatedAt.Format(time.RFC3339), key.ExpiresAt.Format(time.RFC3339), key.IsActive)
}

func listKeys(ctx context.Context, manager *keymanager.Manager, tenantID string) error {
	manifest, err := manager.GetManifest(ctx, tenantID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tCREATED_AT\tEXPIRES_AT\tPUBLIC_KEY")
	for _, key := range manifest.Keys {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			key.ID, key.IsActive, key.CreatedAt.Format(time.RFC3339), key.ExpiresAt.Format(time.RFC3339),
			hex.EncodeToString(key.PublicKey))
	}
	return w.Flush()
}

func verifyKey(ctx context.Context, manager *keymanager.Manager, tenantID, keyID string) error {
	active, err := manager.VerifyKey(ctx, tenantID, keyID)
	if err != nil {
		return err
	}
	fmt.Printf("key=%s exists=%t\n", keyID, active)
	return nil
}
