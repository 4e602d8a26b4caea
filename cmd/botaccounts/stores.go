package main

import (
	"context"
	"fmt"
	"log/slog"

	postgresadapter "github.com/ericfisherdev/botaccounts/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/botaccounts/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/botaccounts/internal/config"
	"github.com/ericfisherdev/botaccounts/internal/domain/port/driven"
)

// stores bundles the storage ports for the configured driver.
type stores struct {
	users driven.UserStore
	keys  driven.KeyStore
	close func() error
}

// openStores opens the configured database, runs its migrations and builds
// the repositories on top of it.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("database opened", "driver", cfg.DBDriver, "path", db.Path())

		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("migrations complete")

		return &stores{
			users: sqliteadapter.NewUserRepo(db),
			keys:  sqliteadapter.NewKeyRepo(db),
			close: db.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgresadapter.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		slog.Info("database opened", "driver", cfg.DBDriver)

		if err := postgresadapter.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("migrations complete")

		return &stores{
			users: postgresadapter.NewUserRepo(db),
			keys:  postgresadapter.NewKeyRepo(db),
			close: db.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
}
