package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vipcontent/vipcheckout/internal/config"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

// NewFromConfig opens the configured session store.
func NewFromConfig(cfg *config.Config, logger *logger.Logger) (models.SessionStore, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Using redis session store", "addr", cfg.RedisAddr)
		return NewRedisStore(client, "vipcheckout", cfg.SessionTTL), nil
	case config.SessionStoreBolt:
		store, err := NewBoltStore(cfg.BoltPath, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		logger.Info("Using bolt session store", "path", cfg.BoltPath)
		return store, nil
	default:
		logger.Info("Using in-memory session store")
		return NewMemoryStore(cfg.SessionTTL), nil
	}
}
