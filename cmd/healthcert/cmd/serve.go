package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/healthcert/internal/core/api"
	"github.com/solatis/healthcert/internal/core/auth"
	"github.com/solatis/healthcert/internal/core/config"
	"github.com/solatis/healthcert/internal/core/db"
	"github.com/solatis/healthcert/internal/core/logging"
	"github.com/solatis/healthcert/internal/core/metrics"
	"github.com/solatis/healthcert/internal/core/server"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/types"
	"github.com/solatis/healthcert/internal/verifier"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP verification service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.Server.GRPCPort, _ = cmd.Flags().GetInt("grpc-port")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.Server.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}

	logger, err := setupLogging(ctx, cfg)
	if err != nil {
		return err
	}
	defer logging.Shutdown(context.Background())

	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := requireMigrated(ctx, database); err != nil {
		return err
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set HC_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, queries, logger)

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
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		vcfg.Observer = metrics.New(registry)
		gatherer = registry
	}

	trustLists, closeTrustLists, err := buildTrustLists(ctx, cfg, database, vcfg.Engine)
	if err != nil {
		return err
	}
	defer closeTrustLists()

	service, err := api.NewVerificationService(verifier.New(vcfg), trustLists, api.Options{
		Country:      cfg.TrustList.Country,
		DefaultModes: cfg.Verifier.DefaultModes,
		DefaultType:  flavor,
		Location:     loc,
		Timeout:      cfg.Server.RequestTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, authenticator)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	router := server.NewRouter(service, authenticator, server.RouterOptions{Gatherer: gatherer, Logger: logger})
	httpServer, err := server.NewHTTPServer(&cfg.Server, router)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("starting healthcert",
		"version", Version,
		"grpc_addr", grpcServer.Addr(),
		"http_addr", httpServer.Addr(),
		"country", cfg.TrustList.Country,
		"trust_list_files", cfg.TrustList.FromFiles(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		httpErr := httpServer.Shutdown(shutdownCtx)
		grpcErr := grpcServer.Shutdown(shutdownCtx)
		if httpErr != nil {
			return httpErr
		}
		return grpcErr
	})
	return g.Wait()
}
