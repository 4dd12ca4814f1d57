package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

const maxChatMessageLength = 4000

// ChatPayload is the body of chat:message.
type ChatPayload struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id,omitempty"`
	Message        string `json:"message"`
}

// ChatService relays conversation-room events: typing, receipts and messages.
type ChatService struct {
	conversations repository.ConversationRepository
	rooms         *RoomManager
	limiter       *RateLimiter
	log           *slog.Logger
}

func NewChatService(conversations repository.ConversationRepository, rooms *RoomManager, limiter *RateLimiter, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{
		conversations: conversations,
		rooms:         rooms,
		limiter:       limiter,
		log:           log,
	}
}

// Join adds an authenticated session to the conversation room if the store
// lists its user as a participant.
func (c *ChatService) Join(ctx context.Context, s *domain.Session, conversationID string) (int, error) {
	const op = "service.chat.join"

	principal, ok := s.Principal()
	if !ok {
		return 0, domain.NewError(domain.KindUnauthenticated, "credential required")
	}
	if strings.TrimSpace(conversationID) == "" {
		return 0, domain.BadRequest("conversationId is required")
	}

	member, err := c.conversations.IsMember(ctx, conversationID, principal.ID)
	if err != nil {
		c.log.Error("membership lookup failed", slog.String("op", op), sl.Err(err))
		return 0, domain.StoreError(err)
	}
	if !member {
		return 0, domain.NewError(domain.KindNotAMember, "not a participant of this conversation")
	}

	room := domain.ConversationRoom(conversationID)
	c.rooms.Join(s, room)
	return c.rooms.MembersCount(room), nil
}

func (c *ChatService) Leave(s *domain.Session, conversationID string) bool {
	room := domain.ConversationRoom(conversationID)
	if !c.rooms.Leave(s, room) {
		return false
	}
	c.rooms.Broadcast(room, domain.NewEvent(domain.EventChatLeft, map[string]any{
		"conversationId": conversationID,
		"userId":         s.UserID(),
	}), s.ID)
	return true
}

func (c *ChatService) Typing(s *domain.Session, conversationID string, started bool) error {
	principal, err := c.member(s, conversationID)
	if err != nil {
		return err
	}

	name := domain.EventChatTypingStop
	if started {
		name = domain.EventChatTypingStart
	}
	c.rooms.Broadcast(domain.ConversationRoom(conversationID), domain.NewEvent(name, map[string]any{
		"conversationId": conversationID,
		"userId":         principal.ID,
		"name":           principal.DisplayName,
	}), s.ID)
	return nil
}

func (c *ChatService) MarkRead(ctx context.Context, s *domain.Session, conversationID string) error {
	principal, err := c.member(s, conversationID)
	if err != nil {
		return err
	}

	if err := c.conversations.MarkRead(ctx, conversationID, principal.ID); err != nil {
		return c.storeErr(err, "service.chat.mark_read")
	}

	c.rooms.Broadcast(domain.ConversationRoom(conversationID), domain.NewEvent(domain.EventChatRead, map[string]any{
		"conversationId": conversationID,
		"readerId":       principal.ID,
		"readAt":         time.Now().UTC().Format(time.RFC3339Nano),
	}), s.ID)
	return nil
}

func (c *ChatService) MarkDelivered(ctx context.Context, s *domain.Session, conversationID, messageID string) error {
	principal, err := c.member(s, conversationID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(messageID) == "" {
		return domain.BadRequest("messageId is required")
	}

	if err := c.conversations.MarkDelivered(ctx, messageID, principal.ID); err != nil {
		return c.storeErr(err, "service.chat.mark_delivered")
	}

	c.rooms.Broadcast(domain.ConversationRoom(conversationID), domain.NewEvent(domain.EventChatDelivered, map[string]any{
		"conversationId": conversationID,
		"messageId":      messageID,
		"userId":         principal.ID,
	}), s.ID)
	return nil
}

// SendMessage persists a chat message and broadcasts it to the whole room,
// sender included.
func (c *ChatService) SendMessage(ctx context.Context, s *domain.Session, payload ChatPayload) (*domain.ChatMessage, error) {
	principal, err := c.member(s, payload.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.limiter.AllowAction(ctx, principal.ID, ActionChatMessage) {
		return nil, domain.NewError(domain.KindRateLimited, "too many messages")
	}

	body, id, err := validateChatPayload(payload)
	if err != nil {
		return nil, err
	}

	msg := domain.NewChatMessage(payload.ConversationID, principal, body)
	if id != uuid.Nil {
		msg.ID = id.String()
	}

	if err := c.conversations.SaveMessage(ctx, msg); err != nil {
		return nil, c.storeErr(err, "service.chat.send")
	}

	c.rooms.Broadcast(domain.ConversationRoom(payload.ConversationID), domain.NewEvent(domain.EventChatMessageNew, map[string]any{
		"id":             msg.ID,
		"conversationId": msg.ConversationID,
		"senderId":       msg.SenderID,
		"sender":         msg.SenderName,
		"message":        msg.Body,
		"timestamp":      msg.CreatedAt.Format(time.RFC3339Nano),
	}), "")
	return msg, nil
}

// member checks room membership held by this connection, not the payload.
func (c *ChatService) member(s *domain.Session, conversationID string) (domain.Principal, error) {
	principal, ok := s.Principal()
	if !ok {
		return domain.Principal{}, domain.NewError(domain.KindUnauthenticated, "credential required")
	}
	if !c.rooms.IsMember(s.ID, domain.ConversationRoom(conversationID)) {
		return domain.Principal{}, domain.NewError(domain.KindNotAMember, "join the conversation first")
	}
	return principal, nil
}

func (c *ChatService) storeErr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotParticipant), errors.Is(err, repository.ErrConversationNotFound):
		return domain.NewError(domain.KindNotAMember, err.Error())
	}
	c.log.Error("conversation store failed", slog.String("op", op), sl.Err(err))
	return domain.StoreError(err)
}

func validateChatPayload(payload ChatPayload) (string, uuid.UUID, error) {
	trimmed := strings.TrimSpace(payload.Message)
	if trimmed == "" {
		return "", uuid.Nil, domain.BadRequest("chat message cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxChatMessageLength {
		return "", uuid.Nil, domain.BadRequest("chat message is too long")
	}

	idStr := strings.TrimSpace(payload.ID)
	if idStr == "" {
		return trimmed, uuid.Nil, nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return "", uuid.Nil, domain.BadRequest("chat message id must be a valid uuid")
	}
	return trimmed, id, nil
}
