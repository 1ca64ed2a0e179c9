package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Cache.Disabled {
		return store.NewNop(), nil
	}
	switch cfg.Cache.Driver {
	case "sqlite":
		path := cfg.Cache.Path
		if path == "" {
			path = "lead-cache.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Cache.DatabaseURL, cfg.Cache.Pool)
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}
