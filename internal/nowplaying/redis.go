/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package nowplaying

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/friendsincode/squarewave/internal/events"
)

// RedisConfig configures the Redis mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Channel  string
}

// DefaultRedisConfig returns the default key and channel names.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:    "localhost:6379",
		Key:     "squarewave:nowplaying",
		Channel: "squarewave:nowplaying",
	}
}

// RedisSink stores the latest metadata under a key and publishes every
// update on a channel.
type RedisSink struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newRedisSink(client, cfg), nil
}

func newRedisSink(client *redis.Client, cfg RedisConfig) *RedisSink {
	def := DefaultRedisConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	return &RedisSink{client: client, key: cfg.Key, channel: cfg.Channel}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, et events.EventType, md Metadata) error {
	data, err := json.Marshal(update{Type: et, NowPlaying: md})
	if err != nil {
		return err
	}
	state, err := json.Marshal(md)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, state, 0)
	pipe.Publish(ctx, s.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// update is the message sent to channel and websocket subscribers.
type update struct {
	Type       events.EventType `json:"type"`
	NowPlaying Metadata         `json:"now_playing"`
}
