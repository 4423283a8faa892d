package store

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"go.uber.org/zap"
)

// Open creates the Store selected by cfg.Provider.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, cfg.MaxRetries, cfg.RetryBackoff, logger)
	case "redis":
		return NewRedis(ctx, RedisOptions{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPass.Value(),
			DB:         cfg.RedisDB,
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.RetryBackoff,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}
