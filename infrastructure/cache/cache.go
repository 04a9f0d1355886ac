package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"socialops/infrastructure/logger"
)

// NewCache connects to Redis and pings it. A failed ping returns the error so
// callers can fall back to in-process state.
func NewCache(ctx context.Context, addr, username, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetLogger().WithField("addr", addr).WithField("error", err).Warn("Redis ping failed")
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
