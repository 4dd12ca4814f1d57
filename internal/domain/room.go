package domain

import "strings"

type RoomKind string

const (
	RoomAuction      RoomKind = "auction"
	RoomConversation RoomKind = "conversation"
)

// RoomID names a broadcast group: one auction or one chat conversation.
type RoomID struct {
	Kind RoomKind
	ID   string
}

func AuctionRoom(auctionID string) RoomID {
	return RoomID{Kind: RoomAuction, ID: auctionID}
}

func ConversationRoom(conversationID string) RoomID {
	return RoomID{Kind: RoomConversation, ID: conversationID}
}

func (r RoomID) String() string {
	return string(r.Kind) + ":" + r.ID
}

func (r RoomID) IsZero() bool {
	return r.Kind == "" || strings.TrimSpace(r.ID) == ""
}
