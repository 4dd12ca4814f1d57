package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/immxrtalbeast/auction_live/internal/cache"
	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
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

// recordingOutbox captures every event sent to a session.
type recordingOutbox struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	full   bool
}

func (o *recordingOutbox) Send(event domain.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.full {
		return false
	}
	o.events = append(o.events, event)
	return true
}

func (o *recordingOutbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

func (o *recordingOutbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *recordingOutbox) Events() []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Event(nil), o.events...)
}

func (o *recordingOutbox) Named(name string) []domain.Event {
	var out []domain.Event
	for _, ev := range o.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (o *recordingOutbox) Last(name string) (map[string]any, bool) {
	events := o.Named(name)
	if len(events) == 0 {
		return nil, false
	}
	data, _ := events[len(events)-1].Data.(map[string]any)
	return data, true
}

func (o *recordingOutbox) Reset() {
	o.mu.Lock()
	o.events = nil
	o.mu.Unlock()
}

func newSession(id string) (*domain.Session, *recordingOutbox) {
	out := &recordingOutbox{}
	return domain.NewSession(id, "127.0.0.1", out, time.Now().UTC()), out
}

func authedSession(id, userID string) (*domain.Session, *recordingOutbox) {
	s, out := newSession(id)
	s.Authenticate(domain.Principal{ID: userID, DisplayName: "user " + userID, Role: domain.RoleUser})
	return s, out
}

func testLimits() config.LimitsConfig {
	var cfg config.Config
	cfg.SetDefaults()
	return cfg.Limits
}

func signToken(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Name: "user " + subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// failingStore is a cache store whose every call fails.
type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, cache.ErrUnavailable
}

func (failingStore) SetWithExpiry(context.Context, string, string, time.Duration) error {
	return cache.ErrUnavailable
}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, cache.ErrUnavailable
}

func (failingStore) Delete(context.Context, string) error {
	return cache.ErrUnavailable
}

// testEnv wires every component over in-memory collaborators.
type testEnv struct {
	clock         *fakeClock
	store         *cache.MemoryStore
	users         *repository.InMemoryUserRepository
	auctions      *repository.InMemoryAuctionRepository
	conversations *repository.InMemoryConversationRepository
	limiter       *RateLimiter
	presence      *PresenceRegistry
	rooms         *RoomManager
	auth          *AuthGate
	coordinator   *AuctionCoordinator
	chat          *ChatService
	relay         *SignalingRelay
	hub           *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, testLimits())
}

func newTestEnvWithLimits(t *testing.T, limits config.LimitsConfig) *testEnv {
	t.Helper()

	clock := newFakeClock()
	env := &testEnv{
		clock:         clock,
		store:         cache.NewMemoryStoreWithClock(clock.Now),
		users:         repository.NewInMemoryUserRepository(),
		auctions:      repository.NewInMemoryAuctionRepositoryWithClock(clock.Now),
		conversations: repository.NewInMemoryConversationRepository(),
		rooms:         NewRoomManager(discardLog),
	}
	env.limiter = NewRateLimiter(env.store, limits, discardLog)
	env.presence = NewPresenceRegistry(env.store, 5*time.Minute, discardLog)
	env.auth = NewAuthGate(env.users, testSecret, "", discardLog)
	env.coordinator = NewAuctionCoordinator(env.auctions, env.rooms, env.limiter, 0, 3, discardLog)
	env.coordinator.now = clock.Now
	env.chat = NewChatService(env.conversations, env.rooms, env.limiter, discardLog)

	env.hub = NewHub(HubDeps{
		Auth:     env.auth,
		Limiter:  env.limiter,
		Presence: env.presence,
		Rooms:    env.rooms,
		Auctions: env.coordinator,
		Chat:     env.chat,
	}, HubConfig{IdleTimeout: 75 * time.Second, StoreTimeout: time.Second}, discardLog)
	env.hub.now = clock.Now

	env.relay = NewSignalingRelay(env.conversations, env.rooms, env.presence, env.limiter, env.hub, []string{"stun:stun.example.org:3478"}, discardLog)
	env.hub.SetSignals(env.relay)
	return env
}

func (e *testEnv) addUser(t *testing.T, id string, status domain.UserStatus) {
	t.Helper()
	require.NoError(t, e.users.Create(context.Background(), &domain.User{
		ID:     id,
		Name:   "user " + id,
		Status: status,
		Role:   domain.RoleUser,
	}))
}

func (e *testEnv) addAuction(t *testing.T, id string, price, increment int64, endsIn time.Duration) {
	t.Helper()
	require.NoError(t, e.auctions.Create(context.Background(), &domain.AuctionState{
		AuctionID:           id,
		Status:              domain.AuctionLive,
		CurrentPrice:        price,
		StartingPrice:       price,
		MinimumBidIncrement: increment,
		StartTime:           e.clock.Now().Add(-time.Hour),
		EndTime:             e.clock.Now().Add(endsIn),
	}))
}

// connect opens a hub session for a user and authenticates it the way a
// client would, through presence:announce.
func (e *testEnv) connect(t *testing.T, connID, userID string) (*domain.Session, *recordingOutbox) {
	t.Helper()
	out := &recordingOutbox{}
	s := e.hub.Connect(connID, "10.0.0.1", out)
	if userID != "" {
		e.send(t, s, domain.EventPresenceAnnounce, map[string]any{"token": signToken(t, userID, time.Hour)})
		status, ok := out.Last(domain.EventConnectionStatus)
		require.True(t, ok)
		require.Equal(t, "authenticated", status["status"])
	}
	out.Reset()
	return s, out
}

func (e *testEnv) send(t *testing.T, s *domain.Session, event string, data any) {
	t.Helper()
	e.hub.HandleMessage(context.Background(), s, mustJSON(t, map[string]any{"event": event, "data": data}))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
