// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/internal/auth/postgres"
	"github.com/sistemapos/posadmin/internal/logging"
	"github.com/sistemapos/posadmin/internal/observability"
	"github.com/sistemapos/posadmin/internal/store"
	"github.com/sistemapos/posadmin/internal/web"
	"github.com/sistemapos/posadmin/pkg/errutil"
)

const (
	serviceName     = "posadmin"
	shutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and metrics servers",
		Long: `Connect to PostgreSQL, make sure the sessions table exists and serve
the JSON API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps)
		},
	}
}

func runServe(cmd *cobra.Command, deps Deps) error {
	cfg, err := loadConfig(cmd, deps)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger := logging.SetDefault(serviceName, version, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connect := store.DefaultConnectOptions()
	connect.Logger = logger
	pool, err := store.Open(ctx, cfg.Database.URL, connect)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := postgres.NewUserRepository(pool)
	sessions, err := openSessionStore(ctx, cfg, pool, users, logger)
	if err != nil {
		return err
	}
	defer sessions.close()

	registry := observability.NewRegistry()
	metrics := observability.NewMetrics(registry)

	svc, err := auth.NewAuthService(
		users,
		sessions.store,
		auth.NewPBKDF2Hasher(cfg.Password.Iterations),
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithLegacyFallback(cfg.Password.LegacyFallback),
		auth.WithRecorder(metrics),
	)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	api, err := web.NewServer(cfg.HTTP.Addr, web.Options{
		Auth:           svc,
		Ping:           sessions.ping,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
		Recorder:       metrics,
		Logger:         logger,
	})
	if err != nil {
		return oops.With("operation", "create api server").Wrap(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiErrs, err := api.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	go monitorServerErrors(runCtx, cancel, apiErrs, "api")

	var obs *observability.Server
	if cfg.Metrics.Addr != "" {
		obs = observability.NewServer(cfg.Metrics.Addr, registry, sessions.ping, logger)
		obsErrs, startErr := obs.Start()
		if startErr != nil {
			stopServer(logger, "api", api.Stop)
			return oops.Code("SERVE_FAILED").With("addr", cfg.Metrics.Addr).Wrap(startErr)
		}
		go monitorServerErrors(runCtx, cancel, obsErrs, "observability")
	}

	logger.Info("posadmin started",
		"api_addr", api.Addr(),
		"metrics_addr", cfg.Metrics.Addr,
		"session_ttl", cfg.Session.TTL,
		"session_store", cfg.Session.Store,
	)

	<-runCtx.Done()
	logger.Info("shutting down")

	stopServer(logger, "api", api.Stop)
	if obs != nil {
		stopServer(logger, "observability", obs.Stop)
	}
	return nil
}

func stopServer(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		errutil.LogError(logger, "server shutdown failed", err, "server", name)
	}
}

// monitorServerErrors cancels the run when a server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
