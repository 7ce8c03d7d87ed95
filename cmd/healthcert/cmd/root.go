package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/healthcert/internal/core/config"
	"github.com/solatis/healthcert/internal/core/db"
	"github.com/solatis/healthcert/internal/core/logging"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "healthcert",
	Short: "EU and Swiss COVID certificate verification",
	Long: `healthcert decodes EU Digital COVID Certificates and Swiss light certificates,
checks their signature, revocation status and national rules, and serves
verdicts over gRPC and HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// loadConfig reads the config file and applies persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return cfg, nil
}

// setupLogging installs the process logger. Callers defer logging.Shutdown.
func setupLogging(ctx context.Context, cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.Setup(ctx, logging.Options{
		Level:        logLevel,
		Format:       logFormat,
		Writer:       os.Stderr,
		OTel:         cfg.OTel.Enabled,
		OTelEndpoint: cfg.OTel.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("--db-url or database.url required")
	}
	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// requireMigrated fails when embedded migrations have not been applied.
func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'healthcert migrate up' first", s.ID)
		}
	}
	return nil
}
