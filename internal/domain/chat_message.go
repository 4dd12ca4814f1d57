package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewChatMessage(conversationID string, sender Principal, body string) *ChatMessage {
	return &ChatMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}
}
