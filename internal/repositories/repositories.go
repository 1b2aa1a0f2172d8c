package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// KVStore is a [models.Store] that holds a resource until closed.
type KVStore interface {
	models.Store
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg shared.StorageConfig) (KVStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		db, err := shared.NewDatabase(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewSQLiteStore(db), nil
	case "file":
		return NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}
