package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/constants"
	"github.com/washpoint/carwash/internal/model"
	"github.com/washpoint/carwash/pkg/cache"
	"github.com/washpoint/carwash/pkg/logger"
	"github.com/washpoint/carwash/pkg/redis"
)

const userCacheTTL = 5 * time.Minute

// UserCache sits in front of the users table. With Redis enabled entries
// are shared across instances; otherwise a per-process TTL cache serves as
// the fallback. Every write path invalidates, so a stale entry lives at
// most one TTL after an out-of-band change.
type UserCache struct {
	redis *redis.Client
	mem   *cache.Cache
}

func NewUserCache(redisClient *redis.Client) *UserCache {
	c := &UserCache{redis: redisClient}
	if redisClient == nil {
		c.mem = cache.NewCache()
	}
	return c
}

func userCacheKey(id uuid.UUID) string {
	return constants.CacheKeyUser + id.String()
}

func (c *UserCache) Get(ctx context.Context, id uuid.UUID) (*model.User, bool) {
	key := userCacheKey(id)

	if c.redis != nil {
		var user model.User
		found, err := c.redis.GetJSON(ctx, key, &user)
		if err != nil || !found {
			return nil, false
		}
		return &user, true
	}

	value, found := c.mem.Get(key)
	if !found {
		return nil, false
	}
	user, ok := value.(*model.User)
	if !ok {
		return nil, false
	}
	cp := *user
	return &cp, true
}

func (c *UserCache) Set(ctx context.Context, user *model.User) {
	key := userCacheKey(user.ID)

	if c.redis != nil {
		if err := c.redis.SetJSON(ctx, key, user, userCacheTTL); err != nil {
			logger.WarnWithContext(ctx, "Failed to cache user").
				String("user_id", user.ID.String()).
				Err(err).
				Log()
		}
		return
	}

	cp := *user
	c.mem.Set(key, &cp, userCacheTTL)
}

func (c *UserCache) Invalidate(ctx context.Context, id uuid.UUID) {
	key := userCacheKey(id)

	if c.redis != nil {
		if err := c.redis.Delete(ctx, key); err != nil {
			logger.WarnWithContext(ctx, "Failed to invalidate user cache").
				String("user_id", id.String()).
				Err(err).
				Log()
		}
		return
	}

	c.mem.Delete(key)
}
