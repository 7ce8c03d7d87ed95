package auth

import "errors"

// Authentication errors. Missing, malformed and unknown keys all map to
// UNAUTHENTICATED (401) so responses never confirm that a key exists;
// revoked keys map to PERMISSION_DENIED (403).
var (
	ErrMissingKey       = errors.New("API key required in x-api-key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrNoSecrets        = errors.New("no HMAC secrets configured")
	ErrStore            = errors.New("api key store unavailable")
)
