package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreIncrementKeepsFirstExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	n, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(50 * time.Second)
	n, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// window started at the first increment, not the second
	clock.Advance(11 * time.Second)
	n, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Increment(ctx, "hits", time.Minute)
		}()
	}
	wg.Wait()

	val, found, err := store.Get(ctx, "hits")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "100", val)
}

func TestMemoryStoreExpiryAndDelete(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "presence:u1", "conn-1", time.Minute))
	val, found, err := store.Get(ctx, "presence:u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "conn-1", val)

	clock.Advance(time.Minute)
	_, found, err = store.Get(ctx, "presence:u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetWithExpiry(ctx, "x", "1", 0))
	require.NoError(t, store.Delete(ctx, "x"))
	_, found, _ = store.Get(ctx, "x")
	assert.False(t, found)
}

func TestMemoryStorePurge(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "a", "1", time.Second))
	require.NoError(t, store.SetWithExpiry(ctx, "b", "1", time.Hour))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, store.Purge())
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Increment(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(configFor("memcached"))
	assert.Error(t, err)

	s, err := New(configFor(""))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
