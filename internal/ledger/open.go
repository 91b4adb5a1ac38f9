package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cockpit/internal/config"
)

// Open builds the ledger named by cfg.Driver. A durable driver without a
// connection string falls back to memory.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			logger.Warn("postgres selected without a DSN, using in-memory ledger")
			return NewMemory(), nil
		}
		return OpenPostgres(cfg.PostgresDSN, cfg.ChunkSize)
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			logger.Warn("redis selected without a URL, using in-memory ledger")
			return NewMemory(), nil
		}
		return OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
