package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/healthcert/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	d := DefaultConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.grpc_port", d.Server.GRPCPort)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("verifier.time_zone", d.Verifier.TimeZone)
	v.SetDefault("verifier.issued_at_skew", d.Verifier.IssuedAtSkew.String())
	v.SetDefault("verifier.default_modes", []string{})
	v.SetDefault("verifier.verification_type", d.Verifier.VerificationType)
	v.SetDefault("trustlist.rule_set_file", "")
	v.SetDefault("trustlist.trust_list_file", "")
	v.SetDefault("trustlist.redis_url", "")
	v.SetDefault("trustlist.country", d.TrustList.Country)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("otel.enabled", d.OTel.Enabled)
	v.SetDefault("otel.endpoint", d.OTel.Endpoint)

	// Bind environment variables with HC_ prefix
	v.SetEnvPrefix("HC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			GRPCPort:       v.GetInt("server.grpc_port"),
			HTTPPort:       v.GetInt("server.http_port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Verifier: VerifierConfig{
			TimeZone:         v.GetString("verifier.time_zone"),
			IssuedAtSkew:     v.GetDuration("verifier.issued_at_skew"),
			DefaultModes:     splitList(v.GetStringSlice("verifier.default_modes")),
			VerificationType: v.GetString("verifier.verification_type"),
		},
		TrustList: TrustListConfig{
			RuleSetFile:   v.GetString("trustlist.rule_set_file"),
			TrustListFile: v.GetString("trustlist.trust_list_file"),
			RedisURL:      v.GetString("trustlist.redis_url"),
			Country:       v.GetString("trustlist.country"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
		OTel: OTelConfig{
			Enabled:  v.GetBool("otel.enabled"),
			Endpoint: v.GetString("otel.endpoint"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks port ranges, positive durations, the verification
// flavor and the time zone.
func validateConfig(cfg *Config) error {
	if cfg.Server.GRPCPort <= 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("grpc_port and http_port must differ, both are %d", cfg.Server.GRPCPort)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Verifier.IssuedAtSkew < 0 {
		return fmt.Errorf("issued_at_skew must not be negative, got %v", cfg.Verifier.IssuedAtSkew)
	}
	if _, err := types.ParseVerificationType(cfg.Verifier.VerificationType); err != nil {
		return fmt.Errorf("verification_type: %w", err)
	}
	if _, err := cfg.Verifier.Location(); err != nil {
		return err
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. InConfig
// only consults the file, so HC_HMAC_SECRET in the environment passes.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use HC_HMAC_SECRET environment variable)")
	}
	return nil
}
