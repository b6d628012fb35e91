package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"rentals/internal/config"
	"rentals/internal/rental"
	"rentals/internal/store/memory"
	"rentals/internal/store/postgres"
)

// backend is the storage selected by configuration together with the
// service options it needs.
type backend struct {
	store  rental.Store
	opts   []rental.Option
	db     *sql.DB
	health func(context.Context) error
}

func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func openBackend(ctx context.Context, cfg config.Config, migrate bool, logger *slog.Logger) (*backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.DatabaseURL, cfg.Storage.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if migrate {
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				db.Close()
				return nil, err
			}
			if len(applied) > 0 {
				logger.Info("applied migrations", "migrations", applied)
			}
		}
		return &backend{
			store:  postgres.NewStore(db),
			opts:   []rental.Option{rental.WithLocker(postgres.NewAdvisoryLocker(db, cfg.Storage.MaxOpenConns))},
			db:     db,
			health: db.PingContext,
		}, nil
	case config.BackendMemory:
		return &backend{
			store:  memory.NewStore(),
			health: func(context.Context) error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *app) newService(b *backend) rental.Service {
	opts := append([]rental.Option{rental.WithLogger(a.logger.With("component", "rental"))}, b.opts...)
	return rental.NewService(b.store, opts...)
}
