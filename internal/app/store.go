// Package app wires configuration to concrete backends shared by the server
// and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/circle/internal/config"
	"github.com/sudo-init-do/circle/internal/session"
	"github.com/sudo-init-do/circle/internal/storage"
	"github.com/sudo-init-do/circle/internal/storage/postgres"
	"github.com/sudo-init-do/circle/internal/storage/sqlite"
)

// OpenStore opens the persistence backend selected by DB_DRIVER.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresDSN(), log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// OpenSessions returns the session backend selected by SESSION_BACKEND and a
// function releasing it.
func OpenSessions(ctx context.Context, cfg config.Config) (session.Store, func() error, error) {
	if cfg.SessionBackend != "redis" {
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return session.NewRedisStore(client, cfg.SessionTTL), client.Close, nil
}
