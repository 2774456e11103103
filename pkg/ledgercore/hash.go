package ledgercore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var errShortHash = errors.New("ledgercore: event hash must be 32 bytes")

// ComputeEventHash implements the Hasher . If previousHash is
// empty this is the genesis event and the hash covers canonical bytes
// alone; otherwise the lowercase hex of the previous event's hash is
// prefixed, colon-separated, before hashing.
func ComputeEventHash(previousHash string, canonicalBytes []byte) string {
	if previousHash == "" {
		sum := sha256.Sum256(canonicalBytes)
		return hex.EncodeToString(sum[:])
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(previousHash)))
	h.Write([]byte(":"))
	h.Write(canonicalBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// HashesEqual compares two hex-encoded hashes case-insensitively, per the
// chain-linkage invariant that previous_event_hash and event_hash compare
// byte-equal but case-insensitive.
func HashesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// DecodeHashBytes hex-decodes an event_hash into the raw 32 bytes that
// get signed and verified; returns an error if the hash is not valid hex
// or not 32 bytes.
func DecodeHashBytes(hexHash string) ([]byte, error) {
	b, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, err
	}
	if len(b) != sha256.Size {
		return nil, errShortHash
	}
	return b, nil
}
