package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

const (
	// DefaultTTL is how long a reconciliation summary stays cached. A new
	// run for the same (date, source) invalidates the key explicitly.
	DefaultTTL = 5 * time.Minute

	// KeyPrefix is the prefix for summary cache keys
	KeyPrefix = "recon:summary:"
)

// SummaryCache is a Redis-backed cache for reconciliation summaries. The
// summary query aggregates the whole journal for a day; dashboards poll it,
// so the hot path is worth a cache.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewSummaryCache creates a new summary cache
func NewSummaryCache(client *redis.Client, log *logger.Logger) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "summary_cache"),
	}
}

// NewSummaryCacheWithTTL creates a new summary cache with custom TTL
func NewSummaryCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "summary_cache"),
	}
}

func summaryKey(date time.Time, source string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, date.Format("2006-01-02"), source)
}

// Get retrieves a cached summary
func (c *SummaryCache) Get(ctx context.Context, date time.Time, source string) (*recon.Summary, bool, error) {
	key := summaryKey(date, source)

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return nil, false, nil // Not found
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get cached summary: %w", err)
	}

	var summary recon.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached summary: %w", err)
	}

	c.logger.Debug("cache hit", "key", key)
	return &summary, true, nil
}

// Set stores a summary in the cache
func (c *SummaryCache) Set(ctx context.Context, summary *recon.Summary) error {
	key := summaryKey(summary.JobDate, summary.SourceName)

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set cached summary: %w", err)
	}

	return nil
}

// Invalidate removes the cached summary for a (date, source); called when a
// new run starts so stale tallies never outlive a rerun.
func (c *SummaryCache) Invalidate(ctx context.Context, date time.Time, source string) error {
	return c.client.Del(ctx, summaryKey(date, source)).Err()
}
