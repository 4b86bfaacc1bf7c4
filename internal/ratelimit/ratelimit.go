// Package ratelimit gates requests on per-user, per-capability quotas backed
// by redis counters. The check runs before any paid work (retrieval, LLM
// calls). Policy is fail-closed: a limiter backend error propagates and fails
// the request rather than silently allowing it.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Capability names a quota bucket.
type Capability string

const (
	CapabilityChat           Capability = "chat"
	CapabilityChatPro        Capability = "chat-pro"
	CapabilityPluginDetector Capability = "plugin-detector"
)

// Denial is the pre-built response for a rejected request. A nil *Denial
// means the request is allowed.
type Denial struct {
	Status            int    `json:"-"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfter"`
}

// CounterStore is the subset of redis commands the checker needs.
// *redis.Client satisfies it.
type CounterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

type Checker struct {
	store  CounterStore
	limits map[Capability]int
	window time.Duration
}

func New(store CounterStore, limits map[Capability]int, window time.Duration) *Checker {
	return &Checker{
		store:  store,
		limits: limits,
		window: window,
	}
}

// Check increments the caller's counter for the capability and returns a
// Denial when the quota is exhausted. A backend error is returned as-is so
// the caller can fail the request (fail-closed).
func (c *Checker) Check(ctx context.Context, userID uuid.UUID, capability Capability) (*Denial, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", capability, userID)

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	if count == 1 {
		if err := c.store.Expire(ctx, key, c.window).Err(); err != nil {
			return nil, fmt.Errorf("ratelimit: expire %s: %w", key, err)
		}
	}

	limit := c.limits[capability]
	if limit <= 0 || count <= int64(limit) {
		return nil, nil
	}

	retry := int(c.window.Seconds())
	if ttl, err := c.store.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retry = int(ttl.Seconds())
	}

	return &Denial{
		Status:            http.StatusTooManyRequests,
		Message:           fmt.Sprintf("You have reached the %s request limit. Please try again later.", capability),
		RetryAfterSeconds: retry,
	}, nil
}
