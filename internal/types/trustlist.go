// internal/types/trustlist.go
package types

import (
	"context"
	"encoding/base64"
	"strings"
)

// SigningKey is a trusted document-signer key in JWK-like form.
// EC keys carry Crv/X/Y, RSA keys carry N/E; all values are base64.
type SigningKey struct {
	KeyID string `json:"keyId"`
	Alg   string `json:"alg"`
	Use   string `json:"use"`
	Crv   string `json:"crv,omitempty"`
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
	N     string `json:"n,omitempty"`
	E     string `json:"e,omitempty"`
}

// KeyIDBytes decodes the key id. Both standard and URL-safe base64 are accepted.
func (k SigningKey) KeyIDBytes() ([]byte, error) {
	return DecodeBase64(k.KeyID)
}

// Permits reports whether the key may sign certificates of the given type.
// "sig" allows every type; otherwise each letter v, r, t or l grants one type.
func (k SigningKey) Permits(certType CertType) bool {
	if k.Use == "sig" {
		return true
	}
	letter := certType.UsageLetter()
	if letter == 0 {
		return false
	}
	return strings.ContainsRune(k.Use, letter)
}

// DecodeBase64 decodes standard or URL-safe base64, padded or not.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// RevocationStore answers whether a certificate identifier has been revoked.
// Implementations must be safe for concurrent use.
type RevocationStore interface {
	Contains(ctx context.Context, certificateID string) (bool, error)
}

// TrustList is the read-only input of one verification call.
type TrustList struct {
	SigningKeys []SigningKey
	Revoked     RevocationStore
	RuleSet     *RuleSet
	// RuleSetID identifies the stored rule set; empty for file-based lists.
	RuleSetID RuleSetID
}
