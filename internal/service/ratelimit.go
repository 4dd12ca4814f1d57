package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/cache"
	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

type Action string

const (
	ActionJoin        Action = "join"
	ActionBid         Action = "bid"
	ActionChatMessage Action = "chat_message"
	ActionCall        Action = "call"
	ActionCallSignal  Action = "call_signal"
	ActionConnect     Action = "connect"
)

// RateLimiter is a fixed-window counter over the shared cache store.
// Store failures fail open.
type RateLimiter struct {
	store  cache.Store
	limits map[Action]config.Limit
	ban    time.Duration
	log    *slog.Logger
}

func NewRateLimiter(store cache.Store, limits config.LimitsConfig, log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		store: store,
		limits: map[Action]config.Limit{
			ActionJoin:        limits.Join,
			ActionBid:         limits.Bid,
			ActionChatMessage: limits.ChatMessage,
			ActionCall:        limits.Call,
			ActionCallSignal:  limits.CallSignal,
			ActionConnect:     limits.ConnectionsPerSource,
		},
		ban: limits.BanDuration,
		log: log.With(slog.String("component", "rate_limiter")),
	}
}

// Allow counts one attempt against key and reports whether it is within ceiling.
func (l *RateLimiter) Allow(ctx context.Context, key string, ceiling int, window time.Duration) bool {
	if ceiling <= 0 {
		return true
	}

	count, err := l.store.Increment(ctx, key, window)
	if err != nil {
		l.log.Warn("rate limit store failed, allowing", slog.String("key", key), sl.Err(err))
		return true
	}

	return count <= int64(ceiling)
}

// AllowAction applies the configured ceiling of action to subject.
func (l *RateLimiter) AllowAction(ctx context.Context, subject string, action Action) bool {
	limit, ok := l.limits[action]
	if !ok {
		return true
	}
	return l.Allow(ctx, rateLimitKey(action, subject), limit.Count, limit.Window)
}

// AllowConnection throttles new connections per source address and bans a
// source that exceeds its ceiling for the configured ban duration.
func (l *RateLimiter) AllowConnection(ctx context.Context, sourceAddr string) bool {
	banKey := "ban:" + string(ActionConnect) + ":" + sourceAddr

	_, banned, err := l.store.Get(ctx, banKey)
	if err != nil {
		l.log.Warn("ban lookup failed, allowing", slog.String("source", sourceAddr), sl.Err(err))
	}
	if banned {
		return false
	}

	if l.AllowAction(ctx, sourceAddr, ActionConnect) {
		return true
	}

	if l.ban > 0 {
		if err := l.store.SetWithExpiry(ctx, banKey, "1", l.ban); err != nil {
			l.log.Warn("failed to record ban", slog.String("source", sourceAddr), sl.Err(err))
		}
	}
	l.log.Info("connection source throttled", slog.String("source", sourceAddr))
	return false
}

func rateLimitKey(action Action, subject string) string {
	return "ratelimit:" + string(action) + ":" + subject
}
