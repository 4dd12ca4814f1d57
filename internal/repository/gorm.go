package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Models lists every table the engine reads or writes, for AutoMigrate.
func Models() []any {
	return []any{
		&model.User{},
		&model.Auction{},
		&model.Bid{},
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageReceipt{},
	}
}

var liveStatuses = []string{string(domain.AuctionLive), "ACTIVE"}

// acceptingBids limits a query to auctions open for bids at now. Status is
// compared the way domain.ParseAuctionStatus reads it: trimmed, any case.
func acceptingBids(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("UPPER(TRIM(status)) IN ? AND end_time > ?", liveStatuses, now)
	}
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

type GormAuctionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormAuctionRepository(db *gorm.DB) *GormAuctionRepository {
	return &GormAuctionRepository{db: db, now: time.Now}
}

func (r *GormAuctionRepository) GetWithTopBid(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var auction model.Auction
	err := r.db.WithContext(ctx).First(&auction, "id = ?", auctionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}

	state := toDomainAuction(&auction)

	var top model.Bid
	err = r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Limit(1).
		Find(&top).Error
	if err != nil {
		return nil, err
	}
	if top.ID != "" && state.LastBidder == "" {
		state.LastBidder = top.BidderID
	}

	return state, nil
}

func (r *GormAuctionRepository) InsertBid(ctx context.Context, attempt domain.BidAttempt) (*domain.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	var bid *domain.Bid

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Auction{}).
			Where("id = ? AND current_price = ? AND ? >= current_price + minimum_bid_increment", attempt.AuctionID, attempt.ExpectedPrice, attempt.Amount).
			Scopes(acceptingBids(now)).
			Updates(map[string]any{
				"current_price":  attempt.Amount,
				"last_bidder_id": attempt.BidderID,
				"bids_count":     gorm.Expr("bids_count + 1"),
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return r.classifyMiss(tx, attempt.AuctionID, now)
		}

		var current model.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "bids_count").
			First(&current, "id = ?", attempt.AuctionID).Error; err != nil {
			return err
		}

		row := model.Bid{
			ID:        uuid.New().String(),
			AuctionID: attempt.AuctionID,
			Sequence:  current.BidsCount,
			BidderID:  attempt.BidderID,
			Amount:    attempt.Amount,
			CreatedAt: now,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrBidConflict
			}
			return err
		}

		bid = toDomainBid(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return bid, nil
}

// classifyMiss explains why the conditional update touched no row.
func (r *GormAuctionRepository) classifyMiss(tx *gorm.DB, auctionID string, now time.Time) error {
	var auction model.Auction
	if err := tx.First(&auction, "id = ?", auctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAuctionNotFound
		}
		return err
	}
	state := toDomainAuction(&auction)
	if !state.AcceptsBids(now) {
		return ErrAuctionClosed
	}
	return ErrBidConflict
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrConversationNotFound
	}
	return ids, nil
}

func (r *GormConversationRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, readerID).
		Update("last_read_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}

func (r *GormConversationRepository) MarkDelivered(ctx context.Context, messageID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg model.Message
	if err := r.db.WithContext(ctx).Select("id", "conversation_id").First(&msg, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	member, err := r.IsMember(ctx, msg.ConversationID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotParticipant
	}

	receipt := model.MessageReceipt{
		MessageID:   messageID,
		UserID:      userID,
		DeliveredAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error
}

func (r *GormConversationRepository) SaveMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", msg.ConversationID, msg.SenderID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotParticipant
		}

		row := model.Message{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Body:           msg.Body,
			CreatedAt:      msg.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("save message: %w", err)
		}

		return tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", row.CreatedAt).Error
	})
}

func toDomainUser(user *model.User) *domain.User {
	return &domain.User{
		ID:          user.ID,
		Name:        user.Name,
		Status:      domain.UserStatus(user.Status),
		Role:        domain.Role(user.Role),
		AccountType: user.AccountType,
		Verified:    user.Verified,
		CreatedAt:   user.CreatedAt.UTC(),
		UpdatedAt:   user.UpdatedAt.UTC(),
	}
}

func toDomainAuction(a *model.Auction) *domain.AuctionState {
	lastBidder := ""
	if a.LastBidderID != nil {
		lastBidder = *a.LastBidderID
	}
	return &domain.AuctionState{
		AuctionID:           a.ID,
		Status:              domain.ParseAuctionStatus(a.Status),
		CurrentPrice:        a.CurrentPrice,
		StartingPrice:       a.StartingPrice,
		MinimumBidIncrement: a.MinimumBidIncrement,
		StartTime:           a.StartTime.UTC(),
		EndTime:             a.EndTime.UTC(),
		LastBidder:          lastBidder,
		ParticipantsCount:   a.ParticipantsCount,
		BidsCount:           a.BidsCount,
	}
}

func toDomainBid(b *model.Bid) *domain.Bid {
	return &domain.Bid{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		BidderID:   b.BidderID,
		Amount:     b.Amount,
		Sequence:   b.Sequence,
		AcceptedAt: b.CreatedAt.UTC(),
	}
}
