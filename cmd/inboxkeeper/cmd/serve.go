package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/inboxkeeper/internal/core/api"
	"github.com/solatis/inboxkeeper/internal/core/auth"
	"github.com/solatis/inboxkeeper/internal/core/config"
	"github.com/solatis/inboxkeeper/internal/core/server"
)

// shutdownGrace bounds the shutdown of both listeners. The gRPC server
// forces its own stop a little earlier.
const shutdownGrace = 35 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC organizer API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Int("metrics-port", 9090, "admin HTTP port for /metrics and /healthz, 0 to disable")
	serveCmd.Flags().String("rules", "", "rule file (JSON, YAML or TOML)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.API.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.API.MetricsPort, _ = cmd.Flags().GetInt("metrics-port")
	}
	if cmd.Flags().Changed("rules") {
		cfg.Organizer.RulesFile, _ = cmd.Flags().GetString("rules")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set IK_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, store.Queries())

	logger := slog.Default()
	engine, err := loadEngine(cfg.Organizer.RulesFile, logger)
	if err != nil {
		return err
	}

	service, err := api.NewOrganizerService(newOrganizer(engine, cfg.Organizer, logger), &cfg.API, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.API, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var admin *server.AdminServer
	if cfg.API.MetricsPort != 0 {
		admin = server.NewAdminServer(cfg.API.MetricsAddress(), grpcServer.Serving, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting InboxKeeper organizer API",
		"version", Version,
		"address", cfg.API.Address(),
		"rules", len(engine.Rules()),
	)

	// The first listener to fail cancels gctx, which shuts the other down
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Start(gctx)
	})
	if admin != nil {
		g.Go(admin.ListenAndServe)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if admin != nil {
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown failed", "error", err)
			}
		}
		return grpcServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
