package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rentals/internal/auth"
	"rentals/internal/chaos"
	"rentals/internal/config"
	"rentals/internal/store/postgres"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Storage.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requires the %s backend, got %s", config.BackendPostgres, a.cfg.Storage.Backend)
			}
			db, err := postgres.Open(cmd.Context(), a.cfg.Storage.DatabaseURL, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			a.logger.Info("migrations applied", "count", len(applied), "migrations", applied)
			return nil
		},
	}
}

func (a *app) hashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the hash and salt to configure for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, salt, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RENTALS_API_KEY_HASH=%s\n", hash)
			fmt.Fprintf(out, "RENTALS_API_KEY_SALT=%s\n", salt)
			return nil
		},
	}
}

func (a *app) chaosCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "chaos <item-id>",
		Short: "Race concurrent rents of one item against the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || itemID < 1 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			ctx := cmd.Context()
			logger := a.logger.With("command", "chaos", "item_id", itemID)

			b, err := openBackend(ctx, a.cfg, a.cfg.Storage.AutoMigrate, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			engine := chaos.NewEngine(logger)
			result, err := engine.RunExperiment(ctx, chaos.ConcurrentRentExperiment(a.newService(b), b.store, itemID, concurrency))
			if err != nil {
				return err
			}
			chaos.Report(cmd.OutOrStdout(), result)
			if !result.HypothesisHeld {
				return fmt.Errorf("experiment %s: hypothesis violated", result.ExperimentName)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 100, "Number of simultaneous rent requests")
	return cmd
}
