package repository

import (
	"context"
	"errors"

	"github.com/immxrtalbeast/auction_live/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrAuctionClosed        = errors.New("auction is not accepting bids")
	ErrBidConflict          = errors.New("auction price changed before the bid was committed")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a conversation participant")
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type AuctionRepository interface {
	// GetWithTopBid returns the auction row merged with its current highest bid.
	GetWithTopBid(ctx context.Context, auctionID string) (*domain.AuctionState, error)
	// InsertBid is the atomic commit point for a bid. It fails with ErrBidConflict
	// when the auction price is no longer attempt.ExpectedPrice or the amount does
	// not clear the stored increment, and with ErrAuctionClosed when bidding is over.
	InsertBid(ctx context.Context, attempt domain.BidAttempt) (*domain.Bid, error)
}

type ConversationRepository interface {
	ListParticipants(ctx context.Context, conversationID string) ([]string, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	MarkRead(ctx context.Context, conversationID, readerID string) error
	MarkDelivered(ctx context.Context, messageID, userID string) error
	SaveMessage(ctx context.Context, msg *domain.ChatMessage) error
}
