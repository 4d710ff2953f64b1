package store

import (
	"context"
	"fmt"

	"github.com/hyperengineering/sitecms/internal/config"
)

// Open returns the repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (ConfigRepository, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
