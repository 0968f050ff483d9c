package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raaihank/deidentifier/internal/config"
)

func TestRateLimiter_Disabled(t *testing.T) {
	r := NewRateLimiter(config.RateLimitConfig{Enabled: false, RequestsPerMin: 1, Burst: 1})
	for i := 0; i < 10; i++ {
		assert.True(t, r.Allow("10.0.0.1"))
	}
	assert.Zero(t, r.Clients())
}

func TestRateLimiter_Burst(t *testing.T) {
	r := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow("a"))
	assert.True(t, r.Allow("a"))
	assert.True(t, r.Allow("a"))
	assert.False(t, r.Allow("a"), "burst exhausted")
	assert.True(t, r.Allow("b"), "clients are independent")

	now = now.Add(time.Second)
	assert.True(t, r.Allow("a"), "one token refilled per second")
	assert.False(t, r.Allow("a"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	r := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Allow("old")
	now = now.Add(2 * time.Hour)
	r.Allow("fresh")
	assert.Equal(t, 2, r.Clients())

	r.CleanupOldBuckets()
	assert.Equal(t, 1, r.Clients())
}
