package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

const cacheKeyPrefix = "newsletter:reference:"

// CachedFetcher memoizes another fetcher's results in Redis. Redis errors
// never fail a fetch; the cache is bypassed instead.
type CachedFetcher struct {
	next  Fetcher
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedFetcher wraps next. A non-positive ttl defaults to one hour.
func NewCachedFetcher(next Fetcher, rdb *redis.Client, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedFetcher{next: next, redis: rdb, ttl: ttl}
}

// FetchReference implements workflow.ReferenceFetcher.
func (c *CachedFetcher) FetchReference(ctx context.Context, url string) (string, error) {
	key := cacheKey(url)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		logger.Debug("reference: cache hit", "key", key)
		return cached, nil
	case !errors.Is(err, redis.Nil):
		logger.Warn("reference: cache read failed", "error", err)
	}

	text, err := c.next.FetchReference(ctx, url)
	if err != nil {
		return "", err
	}
	if err := c.redis.Set(ctx, key, text, c.ttl).Err(); err != nil {
		logger.Warn("reference: cache write failed", "error", err)
	}
	return text, nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
