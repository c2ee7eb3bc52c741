package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivkov/inboxtriage/internal/config"
	"github.com/ivkov/inboxtriage/internal/instrumentation"
	"github.com/ivkov/inboxtriage/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		account     string
		addr        string
		metricsAddr string
		noPoll      bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API with background inbox polling",
		Long: `Start the long-running service: a JWT-protected REST API for triggering
cycles and browsing results, a Prometheus metrics listener, and a
background poller that runs a triage cycle at the configured interval.

The API requires server.jwt_secret and server.api_password_hash in the
configuration (or the JWT_SECRET and API_PASSWORD_HASH environment
variables).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if account != "" {
				cfg.Account = account
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddr = metricsAddr
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg, noPoll, dryRun)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Google account name to use (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "API listen address (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics listen address (default from config)")
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "Disable the background poller; cycles run only via the API")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Decide and log without touching the mailbox")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, noPoll, dryRun bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	p, err := buildPipeline(ctx, cfg, dryRun, provider.Metrics(), logger)
	if err != nil {
		return err
	}
	defer p.Close()

	apiServer := server.NewServer(p.orchestrator, p.audit, server.AuthConfig{
		User:         cfg.Server.APIUser,
		PasswordHash: cfg.Server.APIPasswordHash,
		JWTSecret:    []byte(cfg.Server.JWTSecret),
		TokenTTL:     cfg.Server.TokenTTL.Std(),
	},
		server.WithAddr(cfg.Server.Addr),
		server.WithLogger(logger),
		server.WithMetrics(provider.Metrics()),
	)

	errCh := make(chan error, 2)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var metricsServer *server.MetricsServer
	if provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(cfg.Server.MetricsAddr, provider)
		if err != nil {
			return err
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if !noPoll {
		go pollLoop(ctx, p, cfg.Pipeline.PollInterval.Std(), logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	var shutdownErrs []error
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, err)
		}
	}
	return errors.Join(shutdownErrs...)
}

// pollLoop runs a cycle immediately and then at every interval until the
// context is cancelled. Cycle failures are logged, never fatal; the next
// tick retries.
func pollLoop(ctx context.Context, p *pipeline, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := p.orchestrator.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("background cycle failed", "cycle_id", result.CycleID, "error", err)
		} else {
			logger.Info("background cycle complete",
				"cycle_id", result.CycleID,
				"fetched", result.Fetched,
				"processed", result.Processed,
				"skipped", result.Skipped,
				"failed", result.Failed,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
