package db

import (
	"backend-cmbraga/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis builds the client backing cross-instance event fan-out. An
// empty address disables redis; the stream hub then fans out in-process only.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
