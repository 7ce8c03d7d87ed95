package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/healthcert/internal/core/api"
	"github.com/solatis/healthcert/internal/core/logging"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/types"
	"github.com/solatis/healthcert/internal/verifier"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [qr]",
	Short: "Verify one QR payload and print the verdict as JSON",
	Long: `Verify decodes and verifies one HC1: or LT1: payload. The payload is read
from the argument or, when omitted, from the first line of stdin. Trust
material comes from the configured files or, without files, the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringSlice("mode", nil, "verification modes (default from config)")
	verifyCmd.Flags().String("type", "", "verification type (verifier, wallet)")
	verifyCmd.Flags().String("as-of", "", "check national rules at this date (YYYY-MM-DD or RFC 3339)")
	verifyCmd.Flags().String("country", "", "country whose rules apply (default from config)")
	verifyCmd.Flags().String("rules", "", "rule set file (overrides trustlist.rule_set_file)")
	verifyCmd.Flags().String("trust-list", "", "trust-list file (overrides trustlist.trust_list_file)")
	verifyCmd.Flags().String("now", "", "verification clock as RFC 3339 (default: current time)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	qr, err := readQR(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if f, _ := cmd.Flags().GetString("rules"); f != "" {
		cfg.TrustList.RuleSetFile = f
	}
	if f, _ := cmd.Flags().GetString("trust-list"); f != "" {
		cfg.TrustList.TrustListFile = f
	}

	logger, err := setupLogging(ctx, cfg)
	if err != nil {
		return err
	}
	defer logging.Shutdown(ctx)

	loc, err := cfg.Verifier.Location()
	if err != nil {
		return err
	}
	flavor, err := types.ParseVerificationType(cfg.Verifier.VerificationType)
	if err != nil {
		return err
	}

	vcfg := verifier.Config{
		Location:     loc,
		IssuedAtSkew: cfg.Verifier.IssuedAtSkew,
		Engine:       rules.NewEngine(),
		Logger:       logger,
	}
	if s, _ := cmd.Flags().GetString("now"); s != "" {
		now, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		vcfg.Now = func() time.Time { return now }
	}

	var database *sqlx.DB
	if !cfg.TrustList.FromFiles() {
		database, err = openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := requireMigrated(ctx, database); err != nil {
			return err
		}
	}
	trustLists, release, err := buildTrustLists(ctx, cfg, database, vcfg.Engine)
	if err != nil {
		return err
	}
	defer release()

	service, err := api.NewVerificationService(verifier.New(vcfg), trustLists, api.Options{
		Country:      cfg.TrustList.Country,
		DefaultModes: cfg.Verifier.DefaultModes,
		DefaultType:  flavor,
		Location:     loc,
		Timeout:      cfg.Server.RequestTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	req := api.VerifyRequest{QR: qr}
	req.Modes, _ = cmd.Flags().GetStringSlice("mode")
	req.Type, _ = cmd.Flags().GetString("type")
	req.AsOf, _ = cmd.Flags().GetString("as-of")
	req.Country, _ = cmd.Flags().GetString("country")

	verdict, err := service.Verify(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(verdict)
}

func readQR(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	r := bufio.NewReader(io.LimitReader(cmd.InOrStdin(), types.MaxQRPayloadSize+1))
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}
	// A base45 payload never ends in a space, so surrounding whitespace is noise.
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no payload given")
	}
	return line, nil
}
