// Package ratelimit implements per-key fixed-window rate limiting on top of
// ulule/limiter stores (in-process memory, or Redis when configured). Updates
// on a single key are linearized by the store, so concurrent checks cannot
// over-admit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of one Check call. ResetAt is epoch milliseconds of
// the end of the current window.
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

// Limiter wraps a limiter store and exposes the single Check operation used
// by the front door.
type Limiter struct {
	store limiter.Store
}

// NewMemory creates a limiter backed by the in-process memory store.
func NewMemory() *Limiter {
	return &Limiter{store: memory.NewStore()}
}

// NewRedis creates a limiter backed by Redis, sharing buckets across
// replicas.
func NewRedis(client *redis.Client) (*Limiter, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "signaling:limiter:",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return &Limiter{store: store}, nil
}

// Check consumes one unit from the key's budget of max per windowSec. A
// store error is returned as-is so callers can decide between failing open
// and surfacing 503.
func (l *Limiter) Check(ctx context.Context, key string, max int64, windowSec int) (Result, error) {
	rate := limiter.Rate{
		Period: time.Duration(windowSec) * time.Second,
		Limit:  max,
	}

	lctx, err := l.store.Get(ctx, key, rate)
	if err != nil {
		return Result{}, fmt.Errorf("rate limiter store: %w", err)
	}

	return Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetAt:   lctx.Reset * 1000,
	}, nil
}
