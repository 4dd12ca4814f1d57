package service

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRegistry(t *testing.T) {
	clock := newFakeClock()
	registry := NewPresenceRegistry(cache.NewMemoryStoreWithClock(clock.Now), 5*time.Minute, discardLog)
	ctx := context.Background()

	_, found, err := registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, registry.Announce(ctx, "u1", "conn-1"))
	conn, found, err := registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "conn-1", conn)

	// A newer connection takes over; forgetting the old one keeps it.
	require.NoError(t, registry.Announce(ctx, "u1", "conn-2"))
	require.NoError(t, registry.Forget(ctx, "u1", "conn-1"))
	conn, found, err = registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "conn-2", conn)

	require.NoError(t, registry.Forget(ctx, "u1", "conn-2"))
	_, found, err = registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPresenceRegistryExpires(t *testing.T) {
	clock := newFakeClock()
	registry := NewPresenceRegistry(cache.NewMemoryStoreWithClock(clock.Now), 5*time.Minute, discardLog)
	ctx := context.Background()

	require.NoError(t, registry.Announce(ctx, "u1", "conn-1"))

	clock.Advance(4 * time.Minute)
	require.NoError(t, registry.Announce(ctx, "u1", "conn-1"))

	clock.Advance(4 * time.Minute)
	_, found, err := registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found, "refresh extends the entry")

	clock.Advance(2 * time.Minute)
	_, found, err = registry.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}
