package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the go-redis client used for results snapshots.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis connected for snapshot cache", zap.String("addr", addr), zap.Int("db", db))
	return &Client{Client: rdb, logger: logger}, nil
}
