package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

// AuctionCoordinator validates and sequences bids. It holds no lock across
// store calls: the store's conditional insert is the commit point and the
// checks here only produce early, clean rejections.
type AuctionCoordinator struct {
	auctions repository.AuctionRepository
	rooms    *RoomManager
	limiter  *RateLimiter
	log      *slog.Logger
	floor    int64
	retries  int
	now      func() time.Time

	seqMu   sync.Mutex
	lastSeq map[string]int64
}

func NewAuctionCoordinator(
	auctions repository.AuctionRepository,
	rooms *RoomManager,
	limiter *RateLimiter,
	floor int64,
	retries int,
	log *slog.Logger,
) *AuctionCoordinator {
	if log == nil {
		log = slog.Default()
	}
	if retries <= 0 {
		retries = 1
	}
	return &AuctionCoordinator{
		auctions: auctions,
		rooms:    rooms,
		limiter:  limiter,
		log:      log,
		floor:    floor,
		retries:  retries,
		now:      time.Now,
		lastSeq:  make(map[string]int64),
	}
}

// Join subscribes the session to the auction room after checking the auction
// is still open by the clock, whatever its stored status says.
func (c *AuctionCoordinator) Join(ctx context.Context, s *domain.Session, auctionID string) (*domain.AuctionState, error) {
	const op = "service.auction.join"
	log := c.log.With(
		slog.String("op", op),
		slog.String("auction_id", auctionID),
		slog.String("conn_id", s.ID),
	)

	state, err := c.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if state.HasEnded(c.now()) {
		return nil, domain.NewError(domain.KindAuctionEnded, "auction has ended")
	}

	room := domain.AuctionRoom(auctionID)
	c.rooms.Join(s, room)
	state.ParticipantsCount = c.rooms.MembersCount(room)

	c.rooms.Broadcast(room, domain.NewEvent(domain.EventParticipantsUpdated, map[string]any{
		"auctionId":         auctionID,
		"participantsCount": state.ParticipantsCount,
	}), "")

	log.Info("joined auction", slog.Int("participants", state.ParticipantsCount))
	return state, nil
}

// Leave removes the session from the auction room and tells the others.
func (c *AuctionCoordinator) Leave(s *domain.Session, auctionID string) bool {
	room := domain.AuctionRoom(auctionID)
	if !c.rooms.Leave(s, room) {
		return false
	}

	count := c.rooms.MembersCount(room)
	if count == 0 {
		c.seqMu.Lock()
		delete(c.lastSeq, auctionID)
		c.seqMu.Unlock()
	}

	c.rooms.Broadcast(room, domain.NewEvent(domain.EventAuctionLeft, map[string]any{
		"auctionId":         auctionID,
		"userId":            s.UserID(),
		"participantsCount": count,
	}), "")
	c.rooms.Broadcast(room, domain.NewEvent(domain.EventParticipantsUpdated, map[string]any{
		"auctionId":         auctionID,
		"participantsCount": count,
	}), "")
	return true
}

// PlaceBid runs rate limit, fresh load, end check, minimum check, and the
// store commit, in that order. A commit lost to a concurrent bid is
// re-validated against the new price up to the configured retry count.
func (c *AuctionCoordinator) PlaceBid(ctx context.Context, s *domain.Session, auctionID string, amount int64) (*domain.Bid, error) {
	const op = "service.auction.place_bid"

	principal, ok := s.Principal()
	if !ok {
		return nil, domain.NewError(domain.KindUnauthenticated, "join an auction before bidding")
	}
	log := c.log.With(
		slog.String("op", op),
		slog.String("auction_id", auctionID),
		slog.String("user_id", principal.ID),
	)

	if !c.limiter.AllowAction(ctx, principal.ID, ActionBid) {
		return nil, domain.NewError(domain.KindRateLimited, "too many bids")
	}
	if amount <= 0 {
		return nil, domain.BadRequest("amount must be positive")
	}

	var minimum int64
	for attempt := 0; attempt < c.retries; attempt++ {
		state, err := c.load(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		if !state.AcceptsBids(c.now()) {
			return nil, domain.NewError(domain.KindAuctionEnded, "auction is not accepting bids")
		}

		minimum = state.MinimumBid(c.floor)
		if amount < minimum {
			return nil, domain.BidTooLow(minimum)
		}

		bid, err := c.auctions.InsertBid(ctx, domain.BidAttempt{
			AuctionID:     auctionID,
			BidderID:      principal.ID,
			Amount:        amount,
			ExpectedPrice: state.CurrentPrice,
		})
		switch {
		case err == nil:
			log.Info("bid accepted", slog.Int64("amount", amount), slog.Int64("sequence", bid.Sequence))
			// The bidder always hears about its own accepted bid, even when the
			// room broadcast was superseded or it never joined the room.
			if !c.publish(state, bid, principal) || !c.rooms.IsMember(s.ID, domain.AuctionRoom(auctionID)) {
				s.Send(c.bidPlacedEvent(state, bid, principal))
			}
			return bid, nil
		case errors.Is(err, repository.ErrBidConflict):
			log.Debug("bid lost a concurrent commit, revalidating", slog.Int("attempt", attempt+1))
			continue
		case errors.Is(err, repository.ErrAuctionClosed):
			return nil, domain.NewError(domain.KindAuctionEnded, "auction is not accepting bids")
		case errors.Is(err, repository.ErrAuctionNotFound):
			return nil, domain.NewError(domain.KindAuctionNotFound, "auction not found")
		default:
			log.Error("failed to commit bid", sl.Err(err))
			return nil, domain.StoreError(err)
		}
	}

	// Out of retries: report the minimum against the latest price.
	if state, err := c.load(ctx, auctionID); err == nil {
		minimum = state.MinimumBid(c.floor)
	}
	return nil, domain.BidTooLow(minimum)
}

func (c *AuctionCoordinator) load(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	state, err := c.auctions.GetWithTopBid(ctx, auctionID)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return nil, domain.NewError(domain.KindAuctionNotFound, "auction not found")
		}
		c.log.Error("failed to load auction", slog.String("auction_id", auctionID), sl.Err(err))
		return nil, domain.StoreError(err)
	}
	return state, nil
}

// publish broadcasts an accepted bid unless a later-sequenced bid of the same
// auction was already announced, which keeps room delivery in commit order.
// It reports whether the broadcast went out.
func (c *AuctionCoordinator) publish(state *domain.AuctionState, bid *domain.Bid, bidder domain.Principal) bool {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if bid.Sequence <= c.lastSeq[bid.AuctionID] {
		c.log.Debug("skipping superseded bid broadcast",
			slog.String("auction_id", bid.AuctionID),
			slog.Int64("sequence", bid.Sequence),
		)
		return false
	}
	c.lastSeq[bid.AuctionID] = bid.Sequence

	c.rooms.Broadcast(domain.AuctionRoom(bid.AuctionID), c.bidPlacedEvent(state, bid, bidder), "")
	return true
}

func (c *AuctionCoordinator) bidPlacedEvent(state *domain.AuctionState, bid *domain.Bid, bidder domain.Principal) domain.Event {
	next := *state
	next.CurrentPrice = bid.Amount

	return domain.NewEvent(domain.EventBidPlaced, map[string]any{
		"auctionId":      bid.AuctionID,
		"bidId":          bid.ID,
		"amount":         bid.Amount,
		"currentPrice":   bid.Amount,
		"minimumNextBid": next.MinimumBid(c.floor),
		"bidderId":       bidder.ID,
		"bidderName":     bidder.DisplayName,
		"sequence":       bid.Sequence,
		"timestamp":      bid.AcceptedAt.Format(time.RFC3339Nano),
	})
}
