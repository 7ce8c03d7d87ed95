package types

import "github.com/google/uuid"

// NewVerificationID generates a UUIDv7 verification identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewVerificationID() VerificationID {
	return VerificationID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleSetID generates a UUIDv7 rule set identifier.
// Time-ordered IDs let the newest import win without a separate sequence column.
func NewRuleSetID() RuleSetID {
	return RuleSetID(uuid.Must(uuid.NewV7()).String())
}
