package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nibernar/statistics-service/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	projectKeyPrefix = "stats:project:"
	summaryKeyPrefix = "stats:summary:"
	globalKey        = "stats:global"
)

// Cache is a read-through cache for enriched statistics views. Every method
// is safe to call with a nil receiver or nil client; cache failures are
// logged and never surfaced to callers.
type Cache struct {
	client *redis.Client
	config models.CacheConfig
}

func NewCache(client *redis.Client, config models.CacheConfig) *Cache {
	return &Cache{client: client, config: config}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.config.Enabled
}

// ProjectKey returns the cache key for a project's enriched statistics.
func ProjectKey(projectID string) string {
	return projectKeyPrefix + projectID
}

// SummaryKey returns the cache key for a project's summary view.
func SummaryKey(projectID string) string {
	return summaryKeyPrefix + projectID
}

// GlobalKey returns the cache key for the cross-project aggregate.
func GlobalKey() string {
	return globalKey
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.enabled() {
		return false
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		fiberlog.Debugf("StatisticsCache: miss for %s", key)
		return false
	}
	if err != nil {
		fiberlog.Warnf("StatisticsCache: get %s failed: %v", key, err)
		return false
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		fiberlog.Warnf("StatisticsCache: corrupt entry at %s, dropping: %v", key, err)
		c.client.Del(ctx, key)
		return false
	}

	fiberlog.Debugf("StatisticsCache: hit for %s", key)
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.enabled() {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		fiberlog.Warnf("StatisticsCache: marshal for %s failed: %v", key, err)
		return
	}

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		fiberlog.Warnf("StatisticsCache: set %s failed: %v", key, err)
	}
}

// GetProject returns the cached enriched statistics for a project.
func (c *Cache) GetProject(ctx context.Context, projectID string) (*models.StatisticsResponse, bool) {
	var resp models.StatisticsResponse
	if !c.get(ctx, ProjectKey(projectID), &resp) {
		return nil, false
	}
	return &resp, true
}

// SetProject caches the enriched statistics for a project.
func (c *Cache) SetProject(ctx context.Context, projectID string, resp *models.StatisticsResponse) {
	c.set(ctx, ProjectKey(projectID), resp, c.config.ProjectTTL())
}

// GetSummary returns the cached summary view for a project.
func (c *Cache) GetSummary(ctx context.Context, projectID string) (*models.StatisticsSummary, bool) {
	var summary models.StatisticsSummary
	if !c.get(ctx, SummaryKey(projectID), &summary) {
		return nil, false
	}
	return &summary, true
}

// SetSummary caches the summary view for a project.
func (c *Cache) SetSummary(ctx context.Context, projectID string, summary *models.StatisticsSummary) {
	c.set(ctx, SummaryKey(projectID), summary, c.config.SummaryTTL())
}

// GetGlobal returns the cached cross-project aggregate.
func (c *Cache) GetGlobal(ctx context.Context) (*models.GlobalStatistics, bool) {
	var global models.GlobalStatistics
	if !c.get(ctx, globalKey, &global) {
		return nil, false
	}
	return &global, true
}

// SetGlobal caches the cross-project aggregate.
func (c *Cache) SetGlobal(ctx context.Context, global *models.GlobalStatistics) {
	c.set(ctx, globalKey, global, c.config.GlobalTTL())
}

// InvalidateProject drops every cache entry a write to the project can
// stale: the project view, its summary, and the global aggregate.
func (c *Cache) InvalidateProject(ctx context.Context, projectID string) {
	if !c.enabled() {
		return
	}

	keys := []string{ProjectKey(projectID), SummaryKey(projectID), globalKey}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		fiberlog.Warnf("StatisticsCache: invalidate for project %s failed: %v", projectID, err)
		return
	}
	fiberlog.Debugf("StatisticsCache: invalidated project %s", projectID)
}

// InvalidateGlobal drops only the cross-project aggregate.
func (c *Cache) InvalidateGlobal(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.client.Del(ctx, globalKey).Err(); err != nil {
		fiberlog.Warnf("StatisticsCache: invalidate global failed: %v", err)
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
