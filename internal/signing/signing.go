// Package signing authenticates outbreak alerts exchanged with partner
// systems. Payloads are canonicalized before hashing so that semantically
// identical JSON always produces the same signature.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

const scheme = "sha256"

type Signer struct {
	secret []byte
}

func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Canonicalize produces a deterministic serialization of a JSON document:
// object keys sorted, no incidental whitespace. Construction order of the
// input never changes the output bytes.
func Canonicalize(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	// Keep numbers as their source literals. Decoding through float64 would
	// collapse 42 and 42.0 and corrupt integers beyond 2^53.
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	// encoding/json writes map keys in sorted order with no padding,
	// which is exactly the canonical form.
	return json.Marshal(v)
}

// Sign returns the signature header value for payload: "sha256=<hex>" where
// the digest is HMAC-SHA256 over the canonical serialization.
func (s *Signer) Sign(payload []byte) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return scheme + "=" + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature for payload and compares it against the
// presented header value in constant time. Every fault path reports invalid:
// a missing or unrecognized scheme prefix, a header that does not split into
// scheme and digest, or a payload that cannot be canonicalized.
func (s *Signer) Verify(payload []byte, signature string) bool {
	declaredScheme, digest, ok := strings.Cut(signature, "=")
	if !ok || declaredScheme != scheme {
		return false
	}

	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	_, expectedDigest, _ := strings.Cut(expected, "=")

	return hmac.Equal([]byte(digest), []byte(expectedDigest))
}
