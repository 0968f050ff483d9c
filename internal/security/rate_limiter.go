// Package security holds request admission controls for the HTTP API.
package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/deidentifier/internal/config"
)

const (
	cleanupInterval = 30 * time.Minute
	idleCutoff      = time.Hour
)

// RateLimiter implements per-client token bucket rate limiting
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*clientBucket
	mu      sync.RWMutex
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client is allowed
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.config.Enabled {
		return true
	}

	bucket := r.getBucket(clientID)
	now := r.now()

	bucket.mu.Lock()
	bucket.lastSeen = now
	bucket.mu.Unlock()

	return bucket.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (r *RateLimiter) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

// getBucket gets or creates the bucket for a client
func (r *RateLimiter) getBucket(clientID string) *clientBucket {
	r.mu.RLock()
	bucket, exists := r.buckets[clientID]
	r.mu.RUnlock()

	if exists {
		return bucket
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := r.buckets[clientID]; exists {
		return bucket
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = r.config.RequestsPerMin
	}
	bucket = &clientBucket{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), burst),
		lastSeen: r.now(),
	}
	r.buckets[clientID] = bucket
	return bucket
}

// CleanupOldBuckets removes buckets idle for longer than an hour
func (r *RateLimiter) CleanupOldBuckets() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idleCutoff)
	for id, bucket := range r.buckets {
		bucket.mu.Lock()
		if bucket.lastSeen.Before(cutoff) {
			delete(r.buckets, id)
		}
		bucket.mu.Unlock()
	}
}

// StartCleanupRoutine cleans up idle buckets until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets()
			}
		}
	}()
}
