// Package signer implements the ledger's Ed25519 editor signing
// discipline: generate_keypair, sign, verify over the raw 32-byte event
// hash.
//
// The message signed is the raw 32-byte event_hash with no additional
// hashing or prefixing, and there is no aggregation scheme — each
// editor's signature is verified independently.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned by Verify when the signature does
	// not validate against the given public key and message.
	ErrInvalidSignature = errors.New("signer: invalid signature")

	// ErrInvalidKeyLength is returned when a base64-decoded key does not
	// match the expected Ed25519 key size.
	ErrInvalidKeyLength = errors.New("signer: invalid key length")
)

// KeyPair holds a generated Ed25519 private/public key pair, base64
// encoded at rest.
type KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateKeyPair creates a new Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: generate keypair: %w", err)
	}
	return &KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// PrivateKeyBase64 returns the private key base64-encoded, for at-rest
// storage by the caller (never logged).
func (k *KeyPair) PrivateKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.PrivateKey)
}

// PublicKeyBase64 returns the public key base64-encoded, the form stored
// immutably on the editor's registration event.
func (k *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.PublicKey)
}

// KeyPairFromPrivateBase64 reconstructs a KeyPair from a base64-encoded
// Ed25519 private key (which in this package's convention is the 64-byte
// seed||public-key form produced by crypto/ed25519).
func KeyPairFromPrivateBase64(b64 string) (*KeyPair, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyLength
	}
	priv := ed25519.PrivateKey(raw)
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign signs message (the raw event_hash bytes, not its hex string) with
// the given private key and returns the 64-byte signature.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// SignBase64 signs message and returns the signature base64-encoded, the
// form stored on the event record.
func SignBase64(priv ed25519.PrivateKey, message []byte) string {
	return base64.StdEncoding.EncodeToString(Sign(priv, message))
}

// Verify verifies a raw signature against a raw public key and message.
func Verify(pub ed25519.PublicKey, message, signature []byte) bool {
	return ed25519.Verify(pub, message, signature)
}

// VerifyBase64 verifies a base64-encoded signature against a base64-encoded
// public key and raw message bytes, returning ErrInvalidSignature on
// mismatch and a decode error if either input is malformed base64/length.
func VerifyBase64(pubB64, sigB64 string, message []byte) error {
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return fmt.Errorf("signer: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKeyLength
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("signer: decode signature: %w", err)
	}
	if !Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrInvalidSignature
	}
	return nil
}
