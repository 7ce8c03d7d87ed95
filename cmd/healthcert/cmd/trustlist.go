package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/healthcert/internal/core/api"
	"github.com/solatis/healthcert/internal/core/config"
	"github.com/solatis/healthcert/internal/core/db"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/trustlist"
	"github.com/solatis/healthcert/internal/types"
)

var trustListCmd = &cobra.Command{
	Use:   "trustlist",
	Short: "Manage rule sets, signing keys and revocations in the database",
}

var importRulesCmd = &cobra.Command{
	Use:   "import-rules <country> <file>",
	Short: "Validate and store a national rule set",
	Args:  cobra.ExactArgs(2),
	RunE:  runImportRules,
}

var importKeysCmd = &cobra.Command{
	Use:   "import-keys <file>",
	Short: "Replace the signing keys and add the revocations of a trust-list document",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportKeys,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <certificate-id>...",
	Short: "Add certificate identifiers to the revocation list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRevoke,
}

var listTrustCmd = &cobra.Command{
	Use:   "list",
	Short: "Show stored rule sets, signing keys and revocation count",
	Args:  cobra.NoArgs,
	RunE:  runListTrust,
}

func init() {
	rootCmd.AddCommand(trustListCmd)
	trustListCmd.AddCommand(importRulesCmd, importKeysCmd, revokeCmd, listTrustCmd)
}

// openStore opens and checks the database for trust-list commands.
func openStore(ctx context.Context) (*db.Store, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := requireMigrated(ctx, database); err != nil {
		database.Close()
		return nil, nil, nil, err
	}
	store, err := db.NewStore(database)
	if err != nil {
		database.Close()
		return nil, nil, nil, err
	}
	return store, cfg, func() { database.Close() }, nil
}

func runImportRules(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	country := strings.ToUpper(args[0])

	body, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read rule set: %w", err)
	}
	rs, err := types.ParseRuleSet(body)
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	if err := rules.NewEngine().Load(rs); err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	store, _, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := store.SaveRuleSet(ctx, country, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported rule set %s for %s (%d rules, %d display rules)\n",
		id, country, len(rs.Rules), len(rs.DisplayRules))
	return nil
}

func runImportKeys(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read trust list: %w", err)
	}
	doc, err := trustlist.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	store, _, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.ReplaceSigningKeys(ctx, doc.Keys); err != nil {
		return err
	}
	if err := store.Revocations().Add(ctx, doc.Revoked...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d signing keys and %d revocations\n", len(doc.Keys), len(doc.Revoked))
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, cfg, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var target trustlist.Store = store.Revocations()
	if cfg.TrustList.RedisURL != "" {
		client, err := trustlist.DialRedis(ctx, cfg.TrustList.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		target = trustlist.NewRedisStore(client, "")
	}

	if err := target.Add(ctx, args...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %d certificates\n", len(args))
	return nil
}

func runListTrust(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, _, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	sets, err := store.ListRuleSets(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rule sets: %d\n", len(sets))
	for _, rs := range sets {
		fmt.Fprintf(out, "  %s  %s  imported %s  validDuration %d\n",
			rs.ID, rs.Country, rs.ImportedAt.UTC().Format(time.RFC3339), rs.ValidDuration)
	}

	keys, err := store.SigningKeys(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signing keys: %d\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(out, "  %s  %s  %s\n", k.KeyID, k.Use, k.Alg)
	}

	revoked, err := store.Revocations().Len(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked certificates: %d\n", revoked)
	return nil
}

// buildTrustLists selects the trust-list source: JSON files when configured,
// the database otherwise. A configured Redis URL replaces the revocation list
// of either source. engine is the verifier's logic cache, reset whenever the
// database source swaps rule sets. The returned func releases the Redis client.
func buildTrustLists(ctx context.Context, cfg *config.Config, database *sqlx.DB, engine *rules.Engine) (api.TrustLists, func(), error) {
	var revoked trustlist.Store
	release := func() {}
	if cfg.TrustList.RedisURL != "" {
		client, err := trustlist.DialRedis(ctx, cfg.TrustList.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		revoked = trustlist.NewRedisStore(client, "")
		release = func() { client.Close() }
	}

	if cfg.TrustList.FromFiles() {
		tl, err := trustlist.Load(ctx, trustlist.Files{
			RuleSet:   cfg.TrustList.RuleSetFile,
			TrustList: cfg.TrustList.TrustListFile,
		}, revoked)
		if err != nil {
			release()
			return nil, nil, err
		}
		return api.StaticTrustLists{strings.ToUpper(cfg.TrustList.Country): tl}, release, nil
	}

	if database == nil {
		release()
		return nil, nil, fmt.Errorf("no trust list files configured and no database available")
	}
	store, err := db.NewStore(database)
	if err != nil {
		release()
		return nil, nil, err
	}
	var override types.RevocationStore
	if revoked != nil {
		override = revoked
	}
	return api.NewStoreTrustLists(store, override, engine, api.DefaultRefreshInterval), release, nil
}
