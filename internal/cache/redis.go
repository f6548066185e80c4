// Package cache is a read-through JSON cache over Redis. Entries live under a
// generation number so one INCR invalidates a whole namespace.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    *logrus.Logger
}

func NewRedis(client *redis.Client, namespace string, ttl time.Duration, logger *logrus.Logger) *Redis {
	return &Redis{client: client, namespace: namespace, ttl: ttl, logger: logger}
}

func (c *Redis) generationKey() string {
	return c.namespace + ":gen"
}

func (c *Redis) key(ctx context.Context, name string) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", c.namespace, gen, name), nil
}

// Get decodes the cached value for name into dst and reports whether it was present.
func (c *Redis) Get(ctx context.Context, name string, dst interface{}) (bool, error) {
	key, err := c.key(ctx, name)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", name, err)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", name, err)
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, name string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", name, err)
	}
	key, err := c.key(ctx, name)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", name, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", name, err)
	}
	return nil
}

// Invalidate drops every entry in the namespace. Old generations expire by TTL.
func (c *Redis) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.generationKey()).Result()
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", c.namespace, err)
	}
	c.logger.WithFields(logrus.Fields{
		"namespace":  c.namespace,
		"generation": gen,
	}).Debug("Cache invalidated")
	return nil
}

// Nop never stores anything. Used when no Redis is configured.
type Nop struct{}

func (Nop) Get(ctx context.Context, name string, dst interface{}) (bool, error) { return false, nil }
func (Nop) Set(ctx context.Context, name string, value interface{}) error       { return nil }
func (Nop) Invalidate(ctx context.Context) error                                { return nil }
