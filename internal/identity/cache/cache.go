// Package cache holds the Redis-backed trust-profile cache. Profiles are
// read far more often than they change (every published-endpoint access
// check consults one), so a short TTL plus explicit invalidation on every
// transition keeps reads off the primary store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"registra/internal/identity/models"
	"registra/pkg/domain"
)

const trustKeyPrefix = "trust:entity:"

const defaultTTL = 5 * time.Minute

type TrustCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*TrustCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *TrustCache) { c.ttl = ttl }
}

func NewTrustCache(client *redis.Client, opts ...Option) *TrustCache {
	c := &TrustCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached profile, or (nil, nil) on a miss.
func (c *TrustCache) Get(ctx context.Context, entityID domain.EntityID) (*models.TrustProfile, error) {
	raw, err := c.client.Get(ctx, trustKeyPrefix+entityID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile models.TrustProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// A corrupt entry is treated as a miss; the caller re-reads the store
		// and overwrites it.
		return nil, nil
	}
	return &profile, nil
}

func (c *TrustCache) Set(ctx context.Context, profile *models.TrustProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trustKeyPrefix+profile.EntityID.String(), raw, c.ttl).Err()
}

func (c *TrustCache) Invalidate(ctx context.Context, entityID domain.EntityID) error {
	return c.client.Del(ctx, trustKeyPrefix+entityID.String()).Err()
}
