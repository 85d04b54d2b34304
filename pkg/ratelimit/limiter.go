package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// TokenBucket allows bursts of up to capacity requests, refilled at refillRate per second
type TokenBucket struct {
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

// Allow takes a token at now. When the bucket is empty it returns false and
// the wait until the next token.
func (tb *TokenBucket) Allow(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	if tb.refillRate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	wait := (1 - tb.tokens) / tb.refillRate
	return false, time.Duration(math.Ceil(wait * float64(time.Second)))
}

// RateLimiter keeps one bucket per key. Buckets unused for ttl are dropped.
type RateLimiter struct {
	buckets    *cache.Cache
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing capacity requests per key in a
// burst and refillRate requests per second after that
func NewRateLimiter(capacity int, refillRate float64, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:    cache.New(ttl, ttl),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Allow takes a token from the bucket of key
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	var bucket *TokenBucket
	if cached, ok := rl.buckets.Get(key); ok {
		bucket = cached.(*TokenBucket)
	} else {
		bucket = NewTokenBucket(rl.capacity, rl.refillRate, now)
	}
	rl.buckets.Set(key, bucket, rl.ttl)
	rl.mu.Unlock()

	return bucket.Allow(now)
}

// Reset forgets the bucket of key
func (rl *RateLimiter) Reset(key string) {
	rl.buckets.Delete(key)
}

// ActiveBuckets is the number of keys currently tracked
func (rl *RateLimiter) ActiveBuckets() int {
	return rl.buckets.ItemCount()
}
