package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/auction_live/internal/domain"
)

type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	cp := *user
	return &cp, nil
}

// SetStatus changes a user's account status, e.g. to revoke access mid-session.
func (r *InMemoryUserRepository) SetStatus(id string, status domain.UserStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Status = status
	}
}

type InMemoryAuctionRepository struct {
	mu       sync.Mutex
	auctions map[string]*domain.AuctionState
	bids     map[string][]domain.Bid
	now      func() time.Time
}

func NewInMemoryAuctionRepository() *InMemoryAuctionRepository {
	return NewInMemoryAuctionRepositoryWithClock(time.Now)
}

func NewInMemoryAuctionRepositoryWithClock(now func() time.Time) *InMemoryAuctionRepository {
	return &InMemoryAuctionRepository{
		auctions: make(map[string]*domain.AuctionState),
		bids:     make(map[string][]domain.Bid),
		now:      now,
	}
}

// Create stores an auction row. A zero current price starts at the starting price.
func (r *InMemoryAuctionRepository) Create(ctx context.Context, auction *domain.AuctionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *auction
	if cp.CurrentPrice < cp.StartingPrice {
		cp.CurrentPrice = cp.StartingPrice
	}
	r.auctions[cp.AuctionID] = &cp
	return nil
}

func (r *InMemoryAuctionRepository) GetWithTopBid(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}

	cp := *a
	return &cp, nil
}

func (r *InMemoryAuctionRepository) InsertBid(ctx context.Context, attempt domain.BidAttempt) (*domain.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[attempt.AuctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}

	now := r.now().UTC()
	if !a.AcceptsBids(now) {
		return nil, ErrAuctionClosed
	}
	if a.CurrentPrice != attempt.ExpectedPrice || attempt.Amount < a.CurrentPrice+a.MinimumBidIncrement {
		return nil, ErrBidConflict
	}

	a.CurrentPrice = attempt.Amount
	a.LastBidder = attempt.BidderID
	a.BidsCount++

	bid := domain.Bid{
		ID:         uuid.New().String(),
		AuctionID:  attempt.AuctionID,
		BidderID:   attempt.BidderID,
		Amount:     attempt.Amount,
		Sequence:   a.BidsCount,
		AcceptedAt: now,
	}
	r.bids[attempt.AuctionID] = append(r.bids[attempt.AuctionID], bid)

	return &bid, nil
}

// Bids returns the accepted bids of an auction in commit order.
func (r *InMemoryAuctionRepository) Bids(auctionID string) []domain.Bid {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.bids[auctionID])
}

type conversation struct {
	participants []string
	messages     map[string]*domain.ChatMessage
	readUpTo     map[string]time.Time
	delivered    map[string]map[string]time.Time
}

type InMemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	messageIndex  map[string]string
}

func NewInMemoryConversationRepository() *InMemoryConversationRepository {
	return &InMemoryConversationRepository{
		conversations: make(map[string]*conversation),
		messageIndex:  make(map[string]string),
	}
}

func (r *InMemoryConversationRepository) Create(ctx context.Context, conversationID string, participants ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations[conversationID] = &conversation{
		participants: slices.Clone(participants),
		messages:     make(map[string]*domain.ChatMessage),
		readUpTo:     make(map[string]time.Time),
		delivered:    make(map[string]map[string]time.Time),
	}
	return nil
}

func (r *InMemoryConversationRepository) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return slices.Clone(c.participants), nil
}

func (r *InMemoryConversationRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return false, nil
	}
	return slices.Contains(c.participants, userID), nil
}

func (r *InMemoryConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if !slices.Contains(c.participants, readerID) {
		return ErrNotParticipant
	}
	c.readUpTo[readerID] = time.Now().UTC()
	return nil
}

func (r *InMemoryConversationRepository) MarkDelivered(ctx context.Context, messageID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	convID, ok := r.messageIndex[messageID]
	if !ok {
		return ErrConversationNotFound
	}
	c := r.conversations[convID]
	if !slices.Contains(c.participants, userID) {
		return ErrNotParticipant
	}
	if c.delivered[messageID] == nil {
		c.delivered[messageID] = make(map[string]time.Time)
	}
	c.delivered[messageID][userID] = time.Now().UTC()
	return nil
}

func (r *InMemoryConversationRepository) SaveMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if !slices.Contains(c.participants, msg.SenderID) {
		return ErrNotParticipant
	}
	cp := *msg
	c.messages[msg.ID] = &cp
	r.messageIndex[msg.ID] = msg.ConversationID
	return nil
}

// Delivered reports whether userID acknowledged messageID.
func (r *InMemoryConversationRepository) Delivered(messageID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convID, ok := r.messageIndex[messageID]
	if !ok {
		return false
	}
	_, ok = r.conversations[convID].delivered[messageID][userID]
	return ok
}
