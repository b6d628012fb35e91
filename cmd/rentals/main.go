package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rentals/internal/config"
	"rentals/internal/logging"
)

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{levelVar: &levelVar, logger: logging.New("text", os.Stderr, &levelVar)}
	if err := app.rootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			app.logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		app.logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand once the root
// command's flags have been parsed.
type app struct {
	configPath string
	logLevel   string

	cfg      config.Config
	levelVar *slog.LevelVar
	logger   *slog.Logger
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rentals",
		Short:         "Rental log service: who has which item, and since when",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("RENTALS_CONFIG"), "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log verbosity (debug, info, warning, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		if a.logLevel != "" {
			cfg.Log.Level = a.logLevel
		}
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		a.levelVar.Set(level)
		a.cfg = cfg
		a.logger = logging.New(cfg.Log.Format, os.Stderr, a.levelVar)
		slog.SetDefault(a.logger)
		return nil
	}

	root.AddCommand(
		a.serveCommand(),
		a.migrateCommand(),
		a.hashKeyCommand(),
		a.chaosCommand(),
		a.statusCommand(),
		a.rentCommand(),
		a.returnCommand(),
		a.listCommand(),
	)
	return root
}
