package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	SigninLimit   int
	SigninWindow  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTLS      RedisTLSConfig
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global        *tokenBucket
	signinLimit   int
	signinWindow  time.Duration
	signinMu      sync.Mutex
	signinBuckets map[string]*ipLimiter
	store         tokenStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

func newRateLimiter(cfg RateLimitConfig) (*rateLimiter, error) {
	rl := &rateLimiter{
		signinLimit:   cfg.SigninLimit,
		signinWindow:  cfg.SigninWindow,
		signinBuckets: make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.signinWindow <= 0 {
		rl.signinWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.signinLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		store, err := newRedisStore(redisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TLS:      cfg.RedisTLS,
			Timeout:  timeout,
		})
		if err != nil {
			return nil, err
		}
		rl.store = store
	}
	return rl, nil
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowSignin(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.signinLimit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		return r.store.Allow(ctx, fmt.Sprintf("slidecast:signin:%s", key), r.signinLimit, r.signinWindow)
	}
	r.signinMu.Lock()
	bucket, exists := r.signinBuckets[key]
	if !exists {
		rate := float64(r.signinLimit) / r.signinWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.signinWindow.Seconds()
		}
		bucket = &ipLimiter{bucket: newTokenBucket(rate, r.signinLimit)}
		r.signinBuckets[key] = bucket
	}
	bucket.lastSeen = time.Now()
	r.cleanupLocked()
	r.signinMu.Unlock()

	if bucket.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) Close() {
	if r == nil || r.store == nil {
		return
	}
	_ = r.store.Close()
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.signinBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.signinWindow)
	for key, bucket := range r.signinBuckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.signinBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
