package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "mediashelf:view:"
	redisGenPrefix = "mediashelf:gen:"
)

// Redis is a ViewCache shared by every instance pointing at the same server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr. The connection is verified lazily on first use.
func NewRedis(addr, password string, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return &Redis{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Generation(ctx context.Context, path string) (uint64, error) {
	path = cleanPath(path)
	gen, err := c.client.Get(ctx, redisGenPrefix+path).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation %s: %w", path, err)
	}
	return gen, nil
}

// InvalidatePath bumps the generation of path and of every path below it,
// then deletes their entries. Generations are bumped first so a reader racing
// the delete already uses the new keys.
func (c *Redis) InvalidatePath(ctx context.Context, path string) error {
	path = cleanPath(path)
	if err := c.bumpGenerations(ctx, path); err != nil {
		return err
	}
	keys := []string{redisKeyPrefix + path}
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+path+"/*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", path, err)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", path, err)
	}
	return nil
}

func (c *Redis) bumpGenerations(ctx context.Context, path string) error {
	keys := []string{redisGenPrefix + path}
	iter := c.client.Scan(ctx, 0, redisGenPrefix+path+"/*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan generations %s: %w", path, err)
	}
	pipe := c.client.TxPipeline()
	for _, k := range keys {
		pipe.Incr(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr generation %s: %w", path, err)
	}
	return nil
}
