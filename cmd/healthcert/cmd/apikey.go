package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/healthcert/internal/core/auth"
	"github.com/solatis/healthcert/internal/core/config"
	"github.com/solatis/healthcert/internal/core/db"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Issue and revoke API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Issue an API key; the key is printed once and never stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyCreate,
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
}

func newAuthenticator(cmd *cobra.Command) (*auth.Authenticator, func(), error) {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := requireMigrated(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	return auth.NewAuthenticator(secrets, queries, nil), func() { database.Close() }, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	a, closeDB, err := newAuthenticator(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	key, client, err := a.Issue(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:   %s\n", client.ID)
	fmt.Fprintf(out, "name: %s\n", client.Name)
	fmt.Fprintf(out, "key:  %s\n", key)
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	a, closeDB, err := newAuthenticator(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := a.Revoke(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
