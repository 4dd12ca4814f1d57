package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
	"github.com/tidwall/gjson"
)

type HubConfig struct {
	IdleTimeout  time.Duration
	StoreTimeout time.Duration
}

type handlerFunc func(ctx context.Context, s *domain.Session, in domain.Inbound) error

// Hub owns every connection session: accept, dispatch, heartbeat, idle
// timeout and disconnect cleanup.
type Hub struct {
	auth     Authenticator
	limiter  *RateLimiter
	presence *PresenceRegistry
	rooms    *RoomManager
	auctions *AuctionCoordinator
	chat     *ChatService
	signals  *SignalingRelay
	cfg      HubConfig
	log      *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	handlers map[string]handlerFunc
}

type HubDeps struct {
	Auth     Authenticator
	Limiter  *RateLimiter
	Presence *PresenceRegistry
	Rooms    *RoomManager
	Auctions *AuctionCoordinator
	Chat     *ChatService
	Signals  *SignalingRelay
}

func NewHub(deps HubDeps, cfg HubConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	h := &Hub{
		auth:     deps.Auth,
		limiter:  deps.Limiter,
		presence: deps.Presence,
		rooms:    deps.Rooms,
		auctions: deps.Auctions,
		chat:     deps.Chat,
		signals:  deps.Signals,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*domain.Session),
	}
	h.handlers = h.routes()
	return h
}

// SetSignals attaches the relay; the relay itself looks sessions up through the hub.
func (h *Hub) SetSignals(signals *SignalingRelay) {
	h.signals = signals
}

func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		domain.EventHeartbeat:        h.handleHeartbeat,
		domain.EventPresenceAnnounce: h.handlePresenceAnnounce,
		domain.EventAuctionJoin:      h.handleAuctionJoin,
		domain.EventAuctionLeave:     h.handleAuctionLeave,
		domain.EventBidPlace:         h.handleBidPlace,
		domain.EventChatJoin:         h.handleChatJoin,
		domain.EventChatLeave:        h.handleChatLeave,
		domain.EventChatMessage:      h.handleChatMessage,
		domain.EventChatTypingStart:  h.handleTyping(true),
		domain.EventChatTypingStop:   h.handleTyping(false),
		domain.EventChatRead:         h.handleChatRead,
		domain.EventChatDelivered:    h.handleChatDelivered,
		domain.EventCallStart:        h.handleCall(domain.EventCallStart),
		domain.EventCallAccept:       h.handleCall(domain.EventCallAccept),
		domain.EventCallReject:       h.handleCall(domain.EventCallReject),
		domain.EventCallCancel:       h.handleCall(domain.EventCallCancel),
		domain.EventCallEnded:        h.handleCall(domain.EventCallEnded),
		domain.EventCallOffer:        h.handleCall(domain.EventCallOffer),
		domain.EventCallAnswer:       h.handleCall(domain.EventCallAnswer),
		domain.EventCallICECandidate: h.handleCall(domain.EventCallICECandidate),
	}
}

// Connect registers a new unauthenticated session for an accepted transport.
func (h *Hub) Connect(connID, sourceAddr string, out domain.Outbox) *domain.Session {
	s := domain.NewSession(connID, sourceAddr, out, h.now().UTC())

	h.mu.Lock()
	h.sessions[connID] = s
	h.mu.Unlock()

	s.Send(domain.NewEvent(domain.EventConnectionStatus, map[string]any{
		"status":             "connected",
		"connectionId":       connID,
		"idleTimeoutSeconds": int(h.cfg.IdleTimeout.Seconds()),
	}))
	h.log.Info("connection accepted", slog.String("conn_id", connID), slog.String("source", sourceAddr))
	return s
}

func (h *Hub) Session(connID string) (*domain.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[connID]
	return s, ok
}

func (h *Hub) SessionsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleMessage decodes and dispatches one raw client message. Every failure,
// including a handler panic, ends as exactly one error event to the sender.
func (h *Hub) HandleMessage(ctx context.Context, s *domain.Session, raw []byte) {
	if s.IsClosed() {
		h.log.Debug("dropping message for closed connection", slog.String("conn_id", s.ID))
		return
	}
	s.Touch(h.now().UTC())

	if !gjson.ValidBytes(raw) {
		s.Send(errorEvent(domain.EventError, nil, domain.BadRequest("message is not valid json")))
		return
	}
	in := domain.Inbound{
		Name: gjson.GetBytes(raw, "event").String(),
	}
	if data := gjson.GetBytes(raw, "data"); data.Exists() {
		in.Data = []byte(data.Raw)
	}

	handler, ok := h.handlers[in.Name]
	if !ok {
		s.Send(errorEvent(domain.EventError, in.Data, domain.BadRequest("unknown event: "+in.Name)))
		return
	}

	if err := h.dispatch(ctx, s, in, handler); err != nil {
		de := domain.AsError(err)
		if de.Transient() {
			h.log.Error("message handling failed",
				slog.String("conn_id", s.ID),
				slog.String("event", in.Name),
				sl.Err(de),
			)
		}
		s.Send(errorEvent(in.Name, in.Data, de))
	}
}

func (h *Hub) dispatch(ctx context.Context, s *domain.Session, in domain.Inbound, handler handlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panicked",
				slog.String("conn_id", s.ID),
				slog.String("event", in.Name),
				slog.Any("panic", r),
			)
			err = domain.StoreError(fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	return handler(ctx, s, in)
}

// Disconnect removes the session from every room and from presence. It is
// safe to call more than once, and from a goroutine other than the one
// still dispatching the connection's messages.
func (h *Hub) Disconnect(ctx context.Context, s *domain.Session) {
	if !s.MarkClosed() {
		return
	}
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()

	userID := s.UserID()
	rooms := s.Rooms()

	if userID != "" {
		h.broadcastPresence(s, rooms, "offline")
		if err := h.presence.Forget(ctx, userID, s.ID); err != nil {
			h.log.Warn("failed to forget presence", slog.String("user_id", userID), sl.Err(err))
		}
	}

	for _, room := range rooms {
		switch room.Kind {
		case domain.RoomAuction:
			h.auctions.Leave(s, room.ID)
		case domain.RoomConversation:
			h.chat.Leave(s, room.ID)
		}
	}

	h.log.Info("connection closed",
		slog.String("conn_id", s.ID),
		slog.String("user_id", userID),
		slog.Int("rooms", len(rooms)),
	)
}

// SweepIdle disconnects sessions with no activity within the idle timeout.
func (h *Hub) SweepIdle(ctx context.Context) int {
	if h.cfg.IdleTimeout <= 0 {
		return 0
	}
	deadline := h.now().UTC().Add(-h.cfg.IdleTimeout)

	h.mu.RLock()
	idle := make([]*domain.Session, 0)
	for _, s := range h.sessions {
		if s.LastActivity().Before(deadline) {
			idle = append(idle, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range idle {
		s.Send(domain.NewEvent(domain.EventConnectionStatus, map[string]any{
			"status":       "idle_timeout",
			"connectionId": s.ID,
		}))
		h.Disconnect(ctx, s)
		s.Close()
	}
	if len(idle) > 0 {
		h.log.Info("idle connections closed", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Shutdown closes every open session.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	all := make([]*domain.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.Disconnect(ctx, s)
		s.Close()
	}
}

// authenticate re-verifies the credential carried by a join-style message
// and refreshes the session principal and presence.
func (h *Hub) authenticate(ctx context.Context, s *domain.Session, token string) (domain.Principal, error) {
	principal, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		return domain.Principal{}, err
	}

	if prev, ok := s.Principal(); ok && prev.ID != principal.ID {
		return domain.Principal{}, domain.NewError(domain.KindInvalidCredential, "connection already belongs to another user")
	}
	s.Authenticate(principal)

	if err := h.presence.Announce(ctx, principal.ID, s.ID); err != nil {
		h.log.Warn("presence announce failed", slog.String("user_id", principal.ID), sl.Err(err))
	}
	// Disconnected while announcing: undo so presence never points at a dead connection.
	if s.IsClosed() {
		if err := h.presence.Forget(ctx, principal.ID, s.ID); err != nil {
			h.log.Warn("failed to forget presence", slog.String("user_id", principal.ID), sl.Err(err))
		}
		return domain.Principal{}, domain.NewError(domain.KindUnauthenticated, "connection is closed")
	}
	return principal, nil
}

func (h *Hub) broadcastPresence(s *domain.Session, rooms []domain.RoomID, status string) {
	event := domain.NewEvent(domain.EventPresenceUpdate, map[string]any{
		"userId": s.UserID(),
		"status": status,
		"at":     h.now().UTC().Format(time.RFC3339),
	})
	for _, room := range rooms {
		h.rooms.Broadcast(room, event, s.ID)
	}
}

// errorEvent picks the outbound error event for the inbound event name and
// echoes the ids from the request so the client can correlate it.
func errorEvent(inbound string, data []byte, err *domain.Error) domain.Event {
	payload := err.Payload()
	if inbound != "" && inbound != domain.EventError {
		payload["event"] = inbound
	}
	for _, field := range []string{"auctionId", "conversationId", "callId", "amount"} {
		if v := gjson.GetBytes(data, field); v.Exists() {
			payload[field] = v.Value()
		}
	}

	name := domain.EventError
	switch {
	case inbound == domain.EventBidPlace:
		name = domain.EventBidRejected
	case strings.HasPrefix(inbound, "auction:"):
		name = domain.EventErrorAuction
	case strings.HasPrefix(inbound, "call:"):
		name = domain.EventCallError
	case strings.HasPrefix(inbound, "chat:"):
		name = domain.EventErrorChat
	case strings.HasPrefix(inbound, "presence:"):
		name = domain.EventErrorPresence
	}
	return domain.NewEvent(name, payload)
}
