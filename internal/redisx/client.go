// Package redisx wraps the shared Redis plumbing: client construction and
// the stream helpers used by the event emitter and the relay consumer.
package redisx

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/brinsoko/LoRa-CP/internal/config"
)

// NewClient builds the shared Redis client.
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks connectivity.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
