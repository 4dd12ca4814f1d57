package service

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/cache"
	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterCeilingAndWindow(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryStoreWithClock(clock.Now)
	limits := testLimits()
	limits.Bid = config.Limit{Count: 10, Window: time.Minute}
	limiter := NewRateLimiter(store, limits, discardLog)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.True(t, limiter.AllowAction(ctx, "u1", ActionBid), "attempt %d", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, limiter.AllowAction(ctx, "u1", ActionBid), "11th attempt within the window")

	// Other users and other actions have their own counters.
	assert.True(t, limiter.AllowAction(ctx, "u2", ActionBid))
	assert.True(t, limiter.AllowAction(ctx, "u1", ActionChatMessage))

	clock.Advance(time.Minute)
	assert.True(t, limiter.AllowAction(ctx, "u1", ActionBid), "new window")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(failingStore{}, testLimits(), discardLog)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.True(t, limiter.AllowAction(ctx, "u1", ActionBid))
	}
	assert.True(t, limiter.AllowConnection(ctx, "10.0.0.1"))
}

func TestRateLimiterZeroCeilingIsUnlimited(t *testing.T) {
	limiter := NewRateLimiter(cache.NewMemoryStore(), testLimits(), discardLog)
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(context.Background(), "k", 0, time.Minute))
	}
}

func TestRateLimiterConnectionBan(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryStoreWithClock(clock.Now)
	limits := testLimits()
	limits.ConnectionsPerSource = config.Limit{Count: 2, Window: time.Minute}
	limits.BanDuration = 5 * time.Minute
	limiter := NewRateLimiter(store, limits, discardLog)
	ctx := context.Background()

	assert.True(t, limiter.AllowConnection(ctx, "10.0.0.1"))
	assert.True(t, limiter.AllowConnection(ctx, "10.0.0.1"))
	assert.False(t, limiter.AllowConnection(ctx, "10.0.0.1"))
	assert.True(t, limiter.AllowConnection(ctx, "10.0.0.2"))

	// The window resets but the ban outlives it.
	clock.Advance(2 * time.Minute)
	assert.False(t, limiter.AllowConnection(ctx, "10.0.0.1"))

	clock.Advance(4 * time.Minute)
	assert.True(t, limiter.AllowConnection(ctx, "10.0.0.1"))
}
