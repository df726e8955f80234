// Package cache holds the Redis-backed image existence cache that sits in
// front of the store when resolving image references.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"moodboard/internal/canvas"
)

const (
	DefaultTTL = 10 * time.Minute

	imageKeyPrefix = "moodboard:image:"
)

// ImageLookup answers image existence checks from Redis and falls back to
// the wrapped lookup for misses. Only positive answers are cached, so a
// missing image is never remembered as missing.
type ImageLookup struct {
	rdb    *redis.Client
	next   canvas.ImageLookup
	ttl    time.Duration
	logger *slog.Logger
}

// NewImageLookup connects to redisURL and wraps next.
func NewImageLookup(redisURL string, ttl time.Duration, next canvas.ImageLookup, logger *slog.Logger) (*ImageLookup, error) {
	if next == nil {
		return nil, fmt.Errorf("image lookup is required")
	}
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageLookup{
		rdb:    redis.NewClient(opts),
		next:   next,
		ttl:    ttl,
		logger: logger.With("component", "image_cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *ImageLookup) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *ImageLookup) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// ExistingImageIDs reports which ids exist. Redis failures degrade to the
// wrapped lookup.
func (c *ImageLookup) ExistingImageIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = imageKey(id)
	}

	missing := ids
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("image cache read failed", "error", err)
	} else {
		missing = make([]string, 0, len(ids))
		for i, v := range values {
			if v != nil {
				found[ids[i]] = true
				continue
			}
			missing = append(missing, ids[i])
		}
	}
	if len(missing) == 0 {
		return found, nil
	}

	fromStore, err := c.next.ExistingImageIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	queued := 0
	for _, id := range missing {
		if !fromStore[id] {
			continue
		}
		found[id] = true
		pipe.Set(ctx, imageKey(id), "1", c.ttl)
		queued++
	}
	if queued > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("image cache write failed", "error", err)
		}
	}
	return found, nil
}

// Forget drops cached entries for deleted images.
func (c *ImageLookup) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = imageKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func imageKey(id string) string {
	return imageKeyPrefix + id
}

var _ canvas.ImageLookup = (*ImageLookup)(nil)
