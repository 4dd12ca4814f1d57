package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID          string    `gorm:"size:64;primaryKey"`
	Name        string    `gorm:"size:255;not null"`
	Status      string    `gorm:"size:32;not null;default:ACTIVE"`
	Role        string    `gorm:"size:32;not null;default:USER"`
	AccountType string    `gorm:"size:32"`
	Verified    bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type Auction struct {
	ID                  string    `gorm:"size:64;primaryKey"`
	Title               string    `gorm:"size:255"`
	Status              string    `gorm:"size:32;index;not null"`
	StartingPrice       int64     `gorm:"not null"`
	CurrentPrice        int64     `gorm:"not null"`
	MinimumBidIncrement int64     `gorm:"not null"`
	StartTime           time.Time `gorm:"not null"`
	EndTime             time.Time `gorm:"index;not null"`
	LastBidderID        *string   `gorm:"size:64"`
	ParticipantsCount   int       `gorm:"not null;default:0"`
	BidsCount           int64     `gorm:"not null;default:0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Bids                []Bid `gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate seeds the current price so the optimistic check has a base
// value, and stores the status in canonical upper case.
func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	a.Status = strings.ToUpper(strings.TrimSpace(a.Status))
	if a.CurrentPrice < a.StartingPrice {
		a.CurrentPrice = a.StartingPrice
	}
	return nil
}

type Bid struct {
	ID        string    `gorm:"size:64;primaryKey"`
	AuctionID string    `gorm:"size:64;not null;uniqueIndex:idx_bids_auction_seq"`
	Sequence  int64     `gorm:"not null;uniqueIndex:idx_bids_auction_seq"`
	BidderID  string    `gorm:"size:64;index;not null"`
	Amount    int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type Conversation struct {
	ID           string `gorm:"size:64;primaryKey"`
	Type         string `gorm:"size:20;not null;default:direct"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Participants []ConversationParticipant `gorm:"constraint:OnDelete:CASCADE"`
}

type ConversationParticipant struct {
	ID             uint       `gorm:"primaryKey"`
	ConversationID string     `gorm:"size:64;not null;uniqueIndex:idx_conv_user"`
	UserID         string     `gorm:"size:64;not null;uniqueIndex:idx_conv_user"`
	LastReadAt     *time.Time `gorm:""`
	CreatedAt      time.Time
}

type Message struct {
	ID             string    `gorm:"size:64;primaryKey"`
	ConversationID string    `gorm:"size:64;index;not null"`
	SenderID       string    `gorm:"size:64;index;not null"`
	Body           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index;not null"`
}

type MessageReceipt struct {
	MessageID   string    `gorm:"size:64;primaryKey"`
	UserID      string    `gorm:"size:64;primaryKey"`
	DeliveredAt time.Time `gorm:"not null"`
}
