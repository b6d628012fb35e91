package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"rentals/internal/auth"
	"rentals/internal/rental"
	"rentals/internal/server"
	"rentals/internal/telemetry"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			logger := a.logger.With("command", "serve")

			shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logger.Warn("telemetry shutdown failed", "error", err)
				}
			}()

			b, err := openBackend(ctx, cfg, cfg.Storage.AutoMigrate, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			var mutating []func(http.Handler) http.Handler
			if cfg.Auth.APIKeyHash != "" {
				mutating = append(mutating, auth.RequireAPIKey(cfg.Auth.APIKeyHash, cfg.Auth.APIKeySalt, logger))
			} else {
				logger.Warn("no API key configured; rent and return are open to anyone")
			}

			handler := rental.NewHandler(a.newService(b), a.logger.With("component", "http"))
			router := server.NewRouter(handler.Routes(mutating...), b.health, a.logger)

			logger.Info("starting rentals service", "addr", cfg.HTTP.Addr, "backend", cfg.Storage.Backend)
			return server.Run(ctx, cfg.HTTP.Addr, router, logger)
		},
	}
}
