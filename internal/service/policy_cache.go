package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

const policyCachePattern = "rbac:*"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type policyReader interface {
	FindRule(ctx context.Context, roleID, elementID string) (*models.AccessRule, error)
	FindElementByName(ctx context.Context, name string) (*models.BusinessElement, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
}

// cachedEntry stores both hits and absences so a missing rule is not
// re-queried on every request.
type cachedEntry[T any] struct {
	Found bool `json:"found"`
	Value *T   `json:"value,omitempty"`
}

// PolicyCache is a read-through cache over the policy store keyed by
// (role, element). Every policy write must call Invalidate. A nil or disabled
// cache repository turns it into a pass-through.
type PolicyCache struct {
	store   policyReader
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewPolicyCache constructs the cache. repo may be nil.
func NewPolicyCache(store policyReader, repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *PolicyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyCache{store: store, repo: repo, metrics: metrics, ttl: ttl, logger: logger}
}

// Enabled indicates whether a backing cache is configured.
func (c *PolicyCache) Enabled() bool {
	return c != nil && c.repo != nil
}

// Rule returns the access rule of (roleID, elementID), or nil when none exists.
func (c *PolicyCache) Rule(ctx context.Context, roleID, elementID string) (*models.AccessRule, error) {
	key := fmt.Sprintf("rbac:rule:%s:%s", roleID, elementID)
	return readThrough(ctx, c, key, func() (*models.AccessRule, error) {
		return c.store.FindRule(ctx, roleID, elementID)
	})
}

// Element returns the business element called name, or nil when none exists.
func (c *PolicyCache) Element(ctx context.Context, name string) (*models.BusinessElement, error) {
	return readThrough(ctx, c, "rbac:element:"+name, func() (*models.BusinessElement, error) {
		return c.store.FindElementByName(ctx, name)
	})
}

// Role returns the role called name, or nil when none exists.
func (c *PolicyCache) Role(ctx context.Context, name string) (*models.Role, error) {
	return readThrough(ctx, c, "rbac:role:"+name, func() (*models.Role, error) {
		return c.store.FindRoleByName(ctx, name)
	})
}

// Invalidate drops every cached policy entry.
func (c *PolicyCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.repo.DeleteByPattern(ctx, policyCachePattern); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("pattern", policyCachePattern), zap.Error(err))
		return err
	}
	return nil
}

func readThrough[T any](ctx context.Context, c *PolicyCache, key string, load func() (*T, error)) (*T, error) {
	if c.Enabled() {
		var entry cachedEntry[T]
		start := time.Now()
		err := c.repo.Get(ctx, key, &entry)
		switch {
		case err == nil:
			c.metrics.RecordCacheOperation(true, time.Since(start))
			return entry.Value, nil
		case errors.Is(err, appErrors.ErrCacheMiss):
			c.metrics.RecordCacheOperation(false, time.Since(start))
		default:
			c.metrics.RecordCacheOperation(false, time.Since(start))
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	value, err := load()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if errors.Is(err, sql.ErrNoRows) {
		value = nil
	}

	if c.Enabled() {
		start := time.Now()
		entry := cachedEntry[T]{Found: value != nil, Value: value}
		if err := c.repo.Set(ctx, key, entry, c.ttl); err != nil {
			c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		c.metrics.ObserveCacheWrite(time.Since(start))
	}
	return value, nil
}
