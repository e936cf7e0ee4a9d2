package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/concord-collective/concord/internal/directory"
)

const cacheKey = "catalog:tenants"

// Provider serves catalog snapshots, reading through a redis cache so the
// API server does not hit the backend's full catalog listing on every
// reconciliation. The worker's refresh cron repopulates the cache.
type Provider struct {
	central directory.Client
	redis   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// NewProvider constructs a Provider. The redis client may be nil, in which
// case every Snapshot call loads from the backend.
func NewProvider(central directory.Client, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Provider{central: central, redis: redisClient, ttl: ttl, logger: logger}
}

// Snapshot returns the cached catalog, falling back to a fresh load on a
// cache miss or decode failure.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if p.redis != nil {
		data, err := p.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var tenants []directory.Tenant
			if err := json.Unmarshal(data, &tenants); err == nil {
				return NewSnapshot(tenants), nil
			}
			if p.logger != nil {
				p.logger.Warn("catalog cache decode failed, reloading", slog.Any("error", err))
			}
		}
	}
	return p.Refresh(ctx)
}

// Refresh loads the catalog from the backend and repopulates the cache.
func (p *Provider) Refresh(ctx context.Context) (*Snapshot, error) {
	tenants, err := p.central.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load tenants: %w", err)
	}
	if p.redis != nil {
		data, err := json.Marshal(tenants)
		if err == nil {
			if err := p.redis.Set(ctx, cacheKey, data, p.ttl).Err(); err != nil && p.logger != nil {
				p.logger.Warn("catalog cache write failed", slog.Any("error", err))
			}
		}
	}
	return NewSnapshot(tenants), nil
}
