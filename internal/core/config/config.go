// Package config provides configuration management for healthcert services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database

	"github.com/solatis/healthcert/internal/types"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Verifier  VerifierConfig
	TrustList TrustListConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
	OTel      OTelConfig
}

// ServerConfig holds listener settings for the gRPC and HTTP surfaces.
type ServerConfig struct {
	Host           string
	GRPCPort       int
	HTTPPort       int
	RequestTimeout time.Duration
}

// VerifierConfig holds verification defaults applied when a request omits them.
type VerifierConfig struct {
	TimeZone         string
	IssuedAtSkew     time.Duration
	DefaultModes     []string
	VerificationType string
}

// Location resolves TimeZone. "Local" and the empty string select the host zone.
func (c VerifierConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time_zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// TrustListConfig selects where signing keys, revocations and rule sets come
// from. With both files empty the trust list is read from the database.
type TrustListConfig struct {
	RuleSetFile   string
	TrustListFile string
	RedisURL      string
	Country       string
}

// FromFiles reports whether the trust list is loaded from JSON files.
func (c TrustListConfig) FromFiles() bool {
	return c.RuleSetFile != "" || c.TrustListFile != ""
}

// DatabaseConfig holds the trust-list database location.
type DatabaseConfig struct {
	URL string
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// OTelConfig toggles OpenTelemetry log export.
type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			GRPCPort:       50051,
			HTTPPort:       8080,
			RequestTimeout: 10 * time.Second,
		},
		Verifier: VerifierConfig{
			TimeZone:         "Europe/Zurich",
			IssuedAtSkew:     types.IssuedAtSkew,
			VerificationType: string(types.VerificationTypeVerifier),
		},
		TrustList: TrustListConfig{
			Country: "CH",
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/healthcert.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		OTel: OTelConfig{
			Endpoint: "localhost:4317",
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports HC_HMAC_SECRET (single) and HC_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("HC_HMAC_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("HC_HMAC_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("HC_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check HC_HMAC_SECRET and HC_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
