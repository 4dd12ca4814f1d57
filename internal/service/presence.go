package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/cache"
)

// PresenceRegistry maps a user to the connection that last announced it.
// Entries are TTL-backed so a process that dies without cleanup self-heals.
type PresenceRegistry struct {
	store cache.Store
	ttl   time.Duration
	log   *slog.Logger
}

func NewPresenceRegistry(store cache.Store, ttl time.Duration, log *slog.Logger) *PresenceRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceRegistry{
		store: store,
		ttl:   ttl,
		log:   log.With(slog.String("component", "presence")),
	}
}

func (p *PresenceRegistry) Announce(ctx context.Context, userID, connID string) error {
	return p.store.SetWithExpiry(ctx, presenceKey(userID), connID, p.ttl)
}

func (p *PresenceRegistry) Resolve(ctx context.Context, userID string) (string, bool, error) {
	return p.store.Get(ctx, presenceKey(userID))
}

// Forget removes the entry only while it still points at connID, so a
// newer connection of the same user keeps its registration.
func (p *PresenceRegistry) Forget(ctx context.Context, userID, connID string) error {
	current, found, err := p.store.Get(ctx, presenceKey(userID))
	if err != nil {
		return err
	}
	if !found || current != connID {
		return nil
	}
	return p.store.Delete(ctx, presenceKey(userID))
}

func presenceKey(userID string) string {
	return "presence:" + userID
}
