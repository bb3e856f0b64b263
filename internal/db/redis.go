package db

import (
	"backend-runcheer/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured; callers fall back
// to in-process alternatives.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,

		// publishes from tracking loops carry short deadlines
		ContextTimeoutEnabled: true,
	})
}
