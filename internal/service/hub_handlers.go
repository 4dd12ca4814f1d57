package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

type tokenPayload struct {
	Token string `json:"token"`
}

type auctionPayload struct {
	Token     string `json:"token"`
	AuctionID string `json:"auctionId"`
}

type bidPayload struct {
	Token     string `json:"token"`
	AuctionID string `json:"auctionId"`
	Amount    int64  `json:"amount"`
}

type conversationPayload struct {
	Token          string `json:"token"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type heartbeatPayload struct {
	ClientTime int64 `json:"clientTime"`
}

// refresh re-verifies an optional credential carried by a non-join message.
func (h *Hub) refresh(ctx context.Context, s *domain.Session, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := h.authenticate(ctx, s, token)
	return err
}

func (h *Hub) handleHeartbeat(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p heartbeatPayload
	if err := in.Decode(&p); err != nil {
		return err
	}

	if userID := s.UserID(); userID != "" {
		if err := h.presence.Announce(ctx, userID, s.ID); err != nil {
			h.log.Warn("presence refresh failed", slog.String("user_id", userID), sl.Err(err))
		}
	}

	now := h.now().UTC()
	reply := map[string]any{
		"status":     "alive",
		"serverTime": now.UnixMilli(),
	}
	if p.ClientTime > 0 {
		reply["latencyMs"] = now.UnixMilli() - p.ClientTime
	}
	s.Send(domain.NewEvent(domain.EventHeartbeat, reply))
	return nil
}

func (h *Hub) handlePresenceAnnounce(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p tokenPayload
	if err := in.Decode(&p); err != nil {
		return err
	}

	principal, err := h.authenticate(ctx, s, p.Token)
	if err != nil {
		return err
	}

	h.broadcastPresence(s, s.Rooms(), "online")
	s.Send(domain.NewEvent(domain.EventConnectionStatus, map[string]any{
		"status":       "authenticated",
		"connectionId": s.ID,
		"userId":       principal.ID,
	}))
	return nil
}

func (h *Hub) handleAuctionJoin(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p auctionPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.AuctionID) == "" {
		return domain.BadRequest("auctionId is required")
	}

	principal, err := h.authenticate(ctx, s, p.Token)
	if err != nil {
		return err
	}
	if !h.limiter.AllowAction(ctx, principal.ID, ActionJoin) {
		return domain.NewError(domain.KindRateLimited, "too many joins")
	}

	state, err := h.auctions.Join(ctx, s, p.AuctionID)
	if err != nil {
		return err
	}

	s.Send(domain.NewEvent(domain.EventAuctionJoined, map[string]any{
		"auctionId":  p.AuctionID,
		"auction":    state,
		"minimumBid": state.MinimumBid(h.auctions.floor),
		"userId":     principal.ID,
	}))
	return nil
}

func (h *Hub) handleAuctionLeave(_ context.Context, s *domain.Session, in domain.Inbound) error {
	var p auctionPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.AuctionID) == "" {
		return domain.BadRequest("auctionId is required")
	}

	if !h.auctions.Leave(s, p.AuctionID) {
		return domain.NewError(domain.KindNotAMember, "not in this auction room")
	}
	s.Send(domain.NewEvent(domain.EventAuctionLeft, map[string]any{
		"auctionId": p.AuctionID,
		"userId":    s.UserID(),
	}))
	return nil
}

func (h *Hub) handleBidPlace(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p bidPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.AuctionID) == "" {
		return domain.BadRequest("auctionId is required")
	}
	if err := h.refresh(ctx, s, p.Token); err != nil {
		return err
	}

	_, err := h.auctions.PlaceBid(ctx, s, p.AuctionID, p.Amount)
	return err
}

func (h *Hub) handleChatJoin(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p conversationPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return domain.BadRequest("conversationId is required")
	}

	principal, err := h.authenticate(ctx, s, p.Token)
	if err != nil {
		return err
	}

	members, err := h.chat.Join(ctx, s, p.ConversationID)
	if err != nil {
		return err
	}

	h.rooms.Broadcast(domain.ConversationRoom(p.ConversationID), domain.NewEvent(domain.EventPresenceUpdate, map[string]any{
		"userId":         principal.ID,
		"conversationId": p.ConversationID,
		"status":         "online",
		"at":             h.now().UTC().Format(time.RFC3339),
	}), s.ID)

	s.Send(domain.NewEvent(domain.EventChatJoined, map[string]any{
		"conversationId": p.ConversationID,
		"userId":         principal.ID,
		"membersCount":   members,
	}))
	return nil
}

func (h *Hub) handleChatLeave(_ context.Context, s *domain.Session, in domain.Inbound) error {
	var p conversationPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return domain.BadRequest("conversationId is required")
	}

	if !h.chat.Leave(s, p.ConversationID) {
		return domain.NewError(domain.KindNotAMember, "not in this conversation room")
	}
	s.Send(domain.NewEvent(domain.EventChatLeft, map[string]any{
		"conversationId": p.ConversationID,
		"userId":         s.UserID(),
	}))
	return nil
}

func (h *Hub) handleChatMessage(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p struct {
		ChatPayload
		Token string `json:"token"`
	}
	if err := in.Decode(&p); err != nil {
		return err
	}
	if err := h.refresh(ctx, s, p.Token); err != nil {
		return err
	}

	_, err := h.chat.SendMessage(ctx, s, p.ChatPayload)
	return err
}

func (h *Hub) handleTyping(started bool) handlerFunc {
	return func(ctx context.Context, s *domain.Session, in domain.Inbound) error {
		var p conversationPayload
		if err := in.Decode(&p); err != nil {
			return err
		}
		if err := h.refresh(ctx, s, p.Token); err != nil {
			return err
		}
		return h.chat.Typing(s, p.ConversationID, started)
	}
}

func (h *Hub) handleChatRead(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p conversationPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if err := h.refresh(ctx, s, p.Token); err != nil {
		return err
	}
	return h.chat.MarkRead(ctx, s, p.ConversationID)
}

func (h *Hub) handleChatDelivered(ctx context.Context, s *domain.Session, in domain.Inbound) error {
	var p conversationPayload
	if err := in.Decode(&p); err != nil {
		return err
	}
	if err := h.refresh(ctx, s, p.Token); err != nil {
		return err
	}
	return h.chat.MarkDelivered(ctx, s, p.ConversationID, p.MessageID)
}

func (h *Hub) handleCall(event string) handlerFunc {
	return func(ctx context.Context, s *domain.Session, in domain.Inbound) error {
		var p struct {
			CallSignal
			Token string `json:"token"`
		}
		if err := in.Decode(&p); err != nil {
			return err
		}
		if err := h.refresh(ctx, s, p.Token); err != nil {
			return err
		}

		callID, err := h.signals.Relay(ctx, s, event, p.CallSignal)
		if err != nil {
			return err
		}

		// The caller needs the generated id to send the follow-up signals.
		if event == domain.EventCallStart && p.CallID == "" {
			s.Send(domain.NewEvent(domain.EventCallStart, map[string]any{
				"callId":         callID,
				"conversationId": p.ConversationID,
				"status":         domain.CallRinging,
			}))
		}
		return nil
	}
}
