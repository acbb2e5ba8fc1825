package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Signature header schemes. The header value is "<scheme>=<hex digest>" computed over the
// raw request body keyed with the trigger secret.
const (
	SchemeSHA256  = "sha256"
	SchemeBLAKE2b = "blake2b"
)

func newKeyedHash(scheme string, secret []byte) (hash.Hash, error) {
	switch scheme {
	case SchemeSHA256:
		return hmac.New(sha256.New, secret), nil
	case SchemeBLAKE2b:
		// keyed BLAKE2b is a MAC on its own, keys are limited to 64 bytes
		return blake2b.New256(secret)
	}
	return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
}

// Sign returns the header value for body under scheme.
func Sign(scheme, secret string, body []byte) (string, error) {
	h, err := newKeyedHash(scheme, []byte(secret))
	if err != nil {
		return "", err
	}
	h.Write(body)
	return scheme + "=" + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether header is a valid signature of body. The digest comparison is
// constant time; malformed headers are simply invalid.
func Verify(secret string, body []byte, header string) bool {
	scheme, digest, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	h, err := newKeyedHash(strings.ToLower(scheme), []byte(secret))
	if err != nil {
		return false
	}
	h.Write(body)
	return hmac.Equal(h.Sum(nil), got)
}

// NewSecret returns a random 256 bit secret, hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
