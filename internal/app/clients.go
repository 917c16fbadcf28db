package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/mechdata-backend/internal/config"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
	"github.com/yungbote/mechdata-backend/internal/platform/locks"
	"github.com/yungbote/mechdata-backend/internal/platform/valuation"
)

// Clients are the external systems the pipeline talks to.
type Clients struct {
	Lookup valuation.Lookup
	Locker locks.Locker

	redis *locks.RedisLocker
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	lookup, err := valuation.New(cfg.Valuation, log)
	if err != nil {
		return out, fmt.Errorf("init valuation lookup: %w", err)
	}
	out.Lookup = lookup
	if lookup == nil {
		log.Warn("valuation backend is none; jobs will stay queued")
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		out.Locker = locks.NewKeyedMutex()
		return out, nil
	}
	rl, err := locks.Dial(ctx, cfg.Redis, log)
	if err != nil {
		return out, fmt.Errorf("init redis locker: %w", err)
	}
	out.redis = rl
	out.Locker = rl
	return out, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
}
