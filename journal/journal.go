package journal

import (
	"context"
	"fmt"
	"io"

	"nfviz.dev/core/status"
)

const (
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
	ProviderRedis  = "redis"
)

type Config struct {
	Provider   string
	SQLitePath string
	RedisAddr  string
	RedisKey   string
}

// Open builds the journal named by cfg.Provider. The returned closer
// releases the backing connection.
func Open(ctx context.Context, cfg Config) (status.Journal, io.Closer, error) {
	switch cfg.Provider {
	case "", ProviderMemory:
		return status.NewMemoryJournal(), io.NopCloser(nil), nil
	case ProviderSQLite:
		j, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return j, j, nil
	case ProviderRedis:
		j := NewRedis(cfg.RedisAddr, cfg.RedisKey)
		if err := j.Ping(ctx); err != nil {
			j.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return j, j, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal provider %q", cfg.Provider)
	}
}
