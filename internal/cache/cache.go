package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/config"
)

var ErrUnavailable = errors.New("cache unavailable")

// Store is the counter/cache contract the engine needs. Implementations must
// make Increment atomic and set the key expiry only when the key is created.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Get reports found=false for a missing or expired key.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, key string) error
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New builds the store selected by cfg.Driver.
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}
