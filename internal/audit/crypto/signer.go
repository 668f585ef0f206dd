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

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyError reports a malformed or wrong-size key.
type KeyError struct {
	Reason string
}

func (e *KeyError) Error() string { return fmt.Sprintf("crypto: key error: %s", e.Reason) }

// Keypair is a generated Ed25519 key pair. Public and Private are the raw
// key bytes as produced by crypto/ed25519; callers that need to persist the
// private half go through a key store, which decides how to encode it.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Signer generates Ed25519 key pairs and signs/verifies digests with them.
type Signer struct{}

// NewSigner constructs a Signer. It carries no state.
func NewSigner() *Signer { return &Signer{} }

// GenerateKeypair produces a fresh Ed25519 key pair using a CSPRNG.
func (*Signer) GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// Sign signs message with priv. It returns a KeyError if priv is not a
// valid Ed25519 private key.
func (*Signer) Sign(priv ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, &KeyError{Reason: fmt.Sprintf("private key has %d bytes, want %d", len(priv), ed25519.PrivateKeySize)}
	}
	return ed25519.Sign(priv, message), nil
}

// Verify reports whether sig is a valid Ed25519 signature of message under
// pub. An invalid key returns an error; an invalid signature over a valid
// key returns (false, nil) — signature mismatch is not itself an error.
func (*Signer) Verify(pub ed25519.PublicKey, message, sig []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, &KeyError{Reason: fmt.Sprintf("public key has %d bytes, want %d", len(pub), ed25519.PublicKeySize)}
	}
	return ed25519.Verify(pub, message, sig), nil
}

// DerivePublic returns the public half of an Ed25519 private key.
func (*Signer) DerivePublic(priv ed25519.PrivateKey) (ed25519.PublicKey, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, &KeyError{Reason: fmt.Sprintf("private key has %d bytes, want %d", len(priv), ed25519.PrivateKeySize)}
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, &KeyError{Reason: "private key did not yield an Ed25519 public key"}
	}
	return pub, nil
}
