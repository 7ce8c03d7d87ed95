// Package types provides domain models shared across healthcert components.
//
// Certificates, rule sets, trust lists and verdict states live here so that
// the decoder, the rule engine and the verifier agree on one vocabulary
// without importing each other. Only ids.go pulls in a third-party module
// (uuid); the rest is encoding/json and time.
package types

import "time"

// VerificationID represents a UUIDv7 identifier assigned to one verify call.
// Time-ordered so log lines and metrics can be correlated chronologically.
type VerificationID string

// RuleSetID represents a UUIDv7 identifier of an imported rule set.
type RuleSetID string

// VerificationType selects the shape of a successful verdict.
type VerificationType string

const (
	// VerificationTypeVerifier reports a single mode result to a checking app.
	VerificationTypeVerifier VerificationType = "verifier"

	// VerificationTypeWallet reports the full display information to a holder app.
	VerificationTypeWallet VerificationType = "wallet"
)

// ParseVerificationType maps a textual flavor to a VerificationType.
// Empty input selects the verifier flavor.
func ParseVerificationType(s string) (VerificationType, error) {
	switch VerificationType(s) {
	case "", VerificationTypeVerifier:
		return VerificationTypeVerifier, nil
	case VerificationTypeWallet:
		return VerificationTypeWallet, nil
	default:
		return "", ErrUnknownVerificationType
	}
}

// ValidityRange is the human validity window derived from display rules.
// Either end may be nil when the corresponding rule produced no date.
type ValidityRange struct {
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// Resource limits enforced while loading rule sets and decoding payloads.
const (
	// MaxExpressionDepth bounds recursion in the CertLogic validator and evaluator.
	// Published rule sets nest well below 20 levels.
	MaxExpressionDepth = 64

	// MaxQRPayloadSize limits the textual QR payload accepted by the decoder.
	// A version 40 QR code holds at most 4296 alphanumeric characters.
	MaxQRPayloadSize = 4296

	// MaxDecompressedSize caps zlib output to bound memory per verification.
	MaxDecompressedSize = 64 * 1024

	// MaxRuleSetSize limits a rule-set document read from disk or the database.
	MaxRuleSetSize = 4 * 1024 * 1024

	// IssuedAtSkew is how far issuedAt may lie in the future before the
	// signature branch rejects the certificate.
	IssuedAtSkew = 5 * time.Minute
)
