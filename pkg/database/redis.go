package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned when a client is requested with Redis turned off
var ErrRedisDisabled = errors.New("redis is disabled")

// RedisClient holds the connection shared by the request lock and the event hub
type RedisClient struct {
	Client *redis.Client
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*RedisClient, error) {
	if !cfg.Redis.Enabled {
		return nil, ErrRedisDisabled
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.RedisAddr(),
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		ClientName: cfg.App.Name,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr(), err)
	}

	log.Info("Redis connected",
		logger.String("addr", cfg.RedisAddr()),
		logger.Int("db", cfg.Redis.DB),
		logger.Int("pool_size", cfg.Redis.PoolSize),
	)

	return &RedisClient{Client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// HealthCheck pings Redis; used by the readiness endpoint
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
