package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/internal/repository"
	"github.com/immxrtalbeast/auction_live/internal/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPlaceBidIncrementRule(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	ctx := context.Background()

	u1, _ := authedSession("c1", "U1")
	u2, _ := authedSession("c2", "U2")
	u3, _ := authedSession("c3", "U3")

	bid, err := env.coordinator.PlaceBid(ctx, u1, "A1", 1150)
	require.NoError(t, err)
	assert.Equal(t, int64(1150), bid.Amount)
	assert.Equal(t, int64(1), bid.Sequence)

	_, err = env.coordinator.PlaceBid(ctx, u2, "A1", 1200)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindBidTooLow, de.Kind)
	assert.Equal(t, int64(1250), de.MinimumRequired)

	_, err = env.coordinator.PlaceBid(ctx, u3, "A1", 1200)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindBidTooLow, de.Kind)
	assert.Equal(t, int64(1250), de.MinimumRequired)

	bid, err = env.coordinator.PlaceBid(ctx, u3, "A1", 1250)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bid.Sequence)
}

func TestPlaceBidFirstBidAgainstStartingPrice(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	u1, _ := authedSession("c1", "U1")

	_, err := env.coordinator.PlaceBid(context.Background(), u1, "A1", 1099)
	assert.True(t, domain.IsKind(err, domain.KindBidTooLow))

	_, err = env.coordinator.PlaceBid(context.Background(), u1, "A1", 1100)
	assert.NoError(t, err)
}

func TestPlaceBidConfiguredFloor(t *testing.T) {
	env := newTestEnv(t)
	env.coordinator.floor = 500
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	u1, _ := authedSession("c1", "U1")

	_, err := env.coordinator.PlaceBid(context.Background(), u1, "A1", 1200)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, int64(1500), de.MinimumRequired)
}

func TestPlaceBidEndedAuction(t *testing.T) {
	tests := []struct {
		name   string
		status domain.AuctionStatus
		endsIn time.Duration
	}{
		{name: "past end time with stored ACTIVE status", status: domain.ParseAuctionStatus("ACTIVE"), endsIn: -time.Minute},
		{name: "exactly at end time", status: domain.AuctionLive, endsIn: 0},
		{name: "ended status before end time", status: domain.AuctionEnded, endsIn: time.Hour},
		{name: "upcoming", status: domain.AuctionUpcoming, endsIn: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			require.NoError(t, env.auctions.Create(context.Background(), &domain.AuctionState{
				AuctionID:           "A1",
				Status:              tt.status,
				StartingPrice:       1000,
				MinimumBidIncrement: 100,
				EndTime:             env.clock.Now().Add(tt.endsIn),
			}))
			u1, _ := authedSession("c1", "U1")

			_, err := env.coordinator.PlaceBid(context.Background(), u1, "A1", 1_000_000)
			assert.True(t, domain.IsKind(err, domain.KindAuctionEnded), "got %v", err)
		})
	}
}

func TestPlaceBidRateLimited(t *testing.T) {
	limits := testLimits()
	limits.Bid = config.Limit{Count: 10, Window: time.Minute}
	env := newTestEnvWithLimits(t, limits)
	env.addAuction(t, "A1", 1000, 10, time.Hour)
	env.addAuction(t, "A2", 1000, 10, time.Hour)
	u1, _ := authedSession("c1", "U1")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		auction := "A1"
		if i%2 == 1 {
			auction = "A2"
		}
		_, err := env.coordinator.PlaceBid(ctx, u1, auction, 1000+100*int64(i+1))
		require.NoError(t, err, "bid %d", i+1)
		env.clock.Advance(time.Second)
	}

	_, err := env.coordinator.PlaceBid(ctx, u1, "A1", 1_000_000)
	assert.True(t, domain.IsKind(err, domain.KindRateLimited))

	env.clock.Advance(time.Minute)
	_, err = env.coordinator.PlaceBid(ctx, u1, "A1", 1_000_000)
	assert.NoError(t, err)
}

func TestPlaceBidRequiresPrincipalAndPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)

	anon, _ := newSession("c0")
	_, err := env.coordinator.PlaceBid(context.Background(), anon, "A1", 5000)
	assert.True(t, domain.IsKind(err, domain.KindUnauthenticated))

	u1, _ := authedSession("c1", "U1")
	_, err = env.coordinator.PlaceBid(context.Background(), u1, "A1", -5)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))

	_, err = env.coordinator.PlaceBid(context.Background(), u1, "missing", 5000)
	assert.True(t, domain.IsKind(err, domain.KindAuctionNotFound))
}

func TestPlaceBidConcurrentSameAmount(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)

	const bidders = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		tooLow   int
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := authedSession("c"+string(rune('a'+i)), "U"+string(rune('a'+i)))
			_, err := env.coordinator.PlaceBid(context.Background(), s, "A1", 1100)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case domain.IsKind(err, domain.KindBidTooLow):
				tooLow++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, bidders-1, tooLow)
	assert.Len(t, env.auctions.Bids("A1"), 1)
}

func TestPlaceBidConcurrentMonotonePrice(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 10, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := authedSession("c"+string(rune('a'+i)), "U"+string(rune('a'+i)))
			_, _ = env.coordinator.PlaceBid(context.Background(), s, "A1", 1010+int64(i%7)*15)
		}(i)
	}
	wg.Wait()

	bids := env.auctions.Bids("A1")
	require.NotEmpty(t, bids)
	prev := int64(1000)
	for i, bid := range bids {
		assert.Equal(t, int64(i+1), bid.Sequence)
		assert.GreaterOrEqual(t, bid.Amount, prev+10, "bid %d must clear the increment", i)
		prev = bid.Amount
	}
}

func TestPlaceBidRetriesLostCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	auctions := mocks.NewMockAuctionRepository(ctrl)
	rooms := NewRoomManager(discardLog)
	limiter := NewRateLimiter(failingStore{}, testLimits(), discardLog)
	coordinator := NewAuctionCoordinator(auctions, rooms, limiter, 0, 3, discardLog)

	end := time.Now().Add(time.Hour)
	stale := &domain.AuctionState{AuctionID: "A1", Status: domain.AuctionLive, CurrentPrice: 1000, StartingPrice: 1000, MinimumBidIncrement: 100, EndTime: end}
	moved := &domain.AuctionState{AuctionID: "A1", Status: domain.AuctionLive, CurrentPrice: 1100, StartingPrice: 1000, MinimumBidIncrement: 100, EndTime: end}

	gomock.InOrder(
		auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").Return(stale, nil),
		auctions.EXPECT().InsertBid(gomock.Any(), domain.BidAttempt{AuctionID: "A1", BidderID: "U1", Amount: 1300, ExpectedPrice: 1000}).
			Return(nil, repository.ErrBidConflict),
		auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").Return(moved, nil),
		auctions.EXPECT().InsertBid(gomock.Any(), domain.BidAttempt{AuctionID: "A1", BidderID: "U1", Amount: 1300, ExpectedPrice: 1100}).
			Return(&domain.Bid{ID: "b2", AuctionID: "A1", BidderID: "U1", Amount: 1300, Sequence: 2, AcceptedAt: time.Now()}, nil),
	)

	u1, _ := authedSession("c1", "U1")
	bid, err := coordinator.PlaceBid(context.Background(), u1, "A1", 1300)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bid.Sequence)
}

func TestPlaceBidLostCommitRevalidatesMinimum(t *testing.T) {
	ctrl := gomock.NewController(t)
	auctions := mocks.NewMockAuctionRepository(ctrl)
	coordinator := NewAuctionCoordinator(auctions, NewRoomManager(discardLog), NewRateLimiter(failingStore{}, testLimits(), discardLog), 0, 3, discardLog)

	end := time.Now().Add(time.Hour)
	gomock.InOrder(
		auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").
			Return(&domain.AuctionState{AuctionID: "A1", Status: domain.AuctionLive, CurrentPrice: 1000, MinimumBidIncrement: 100, EndTime: end}, nil),
		auctions.EXPECT().InsertBid(gomock.Any(), gomock.Any()).Return(nil, repository.ErrBidConflict),
		auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").
			Return(&domain.AuctionState{AuctionID: "A1", Status: domain.AuctionLive, CurrentPrice: 1100, MinimumBidIncrement: 100, EndTime: end}, nil),
	)

	u1, _ := authedSession("c1", "U1")
	_, err := coordinator.PlaceBid(context.Background(), u1, "A1", 1100)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.KindBidTooLow, de.Kind)
	assert.Equal(t, int64(1200), de.MinimumRequired)
}

func TestPlaceBidStoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	auctions := mocks.NewMockAuctionRepository(ctrl)
	coordinator := NewAuctionCoordinator(auctions, NewRoomManager(discardLog), NewRateLimiter(failingStore{}, testLimits(), discardLog), 0, 3, discardLog)
	u1, _ := authedSession("c1", "U1")

	auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").Return(nil, context.DeadlineExceeded)
	_, err := coordinator.PlaceBid(context.Background(), u1, "A1", 1100)
	assert.True(t, domain.IsKind(err, domain.KindStoreTimeout))

	auctions.EXPECT().GetWithTopBid(gomock.Any(), "A1").Return(nil, errors.New("db down"))
	_, err = coordinator.PlaceBid(context.Background(), u1, "A1", 1100)
	assert.True(t, domain.IsKind(err, domain.KindStoreUnavailable))
	assert.Equal(t, domain.CodeServerError, domain.AsError(err).Code())
}

func TestPlaceBidBroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	ctx := context.Background()

	bidder, bidderOut := authedSession("c1", "U1")
	watcher, watcherOut := authedSession("c2", "U2")
	_, err := env.coordinator.Join(ctx, bidder, "A1")
	require.NoError(t, err)
	_, err = env.coordinator.Join(ctx, watcher, "A1")
	require.NoError(t, err)

	_, err = env.coordinator.PlaceBid(ctx, bidder, "A1", 1200)
	require.NoError(t, err)

	for _, out := range []*recordingOutbox{bidderOut, watcherOut} {
		data, ok := out.Last(domain.EventBidPlaced)
		require.True(t, ok)
		assert.Equal(t, int64(1200), data["amount"])
		assert.Equal(t, int64(1200), data["currentPrice"])
		assert.Equal(t, int64(1300), data["minimumNextBid"])
		assert.Equal(t, "U1", data["bidderId"])
		assert.Equal(t, int64(1), data["sequence"])
	}
	assert.Len(t, bidderOut.Named(domain.EventBidPlaced), 1, "members get the broadcast only")
}

func TestPublishDropsSupersededBids(t *testing.T) {
	env := newTestEnv(t)
	watcher, out := authedSession("c1", "U1")
	env.rooms.Join(watcher, domain.AuctionRoom("A1"))

	state := &domain.AuctionState{AuctionID: "A1", MinimumBidIncrement: 100}
	bidder := domain.Principal{ID: "U2"}

	assert.True(t, env.coordinator.publish(state, &domain.Bid{AuctionID: "A1", Amount: 1300, Sequence: 2}, bidder))
	assert.False(t, env.coordinator.publish(state, &domain.Bid{AuctionID: "A1", Amount: 1200, Sequence: 1}, bidder))
	assert.True(t, env.coordinator.publish(state, &domain.Bid{AuctionID: "A1", Amount: 1400, Sequence: 3}, bidder))

	events := out.Named(domain.EventBidPlaced)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Data.(map[string]any)["sequence"])
	assert.Equal(t, int64(3), events[1].Data.(map[string]any)["sequence"])
}

func TestPlaceBidSupersededBroadcastStillAcksBidder(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	ctx := context.Background()

	bidder, bidderOut := authedSession("c1", "U1")
	watcher, watcherOut := authedSession("c2", "U2")
	_, err := env.coordinator.Join(ctx, bidder, "A1")
	require.NoError(t, err)
	_, err = env.coordinator.Join(ctx, watcher, "A1")
	require.NoError(t, err)

	// A later bid of this auction was already announced to the room.
	env.coordinator.seqMu.Lock()
	env.coordinator.lastSeq["A1"] = 2
	env.coordinator.seqMu.Unlock()

	bid, err := env.coordinator.PlaceBid(ctx, bidder, "A1", 1100)
	require.NoError(t, err)
	assert.Len(t, env.auctions.Bids("A1"), 1)

	placed := bidderOut.Named(domain.EventBidPlaced)
	require.Len(t, placed, 1)
	data := placed[0].Data.(map[string]any)
	assert.Equal(t, bid.ID, data["bidId"])
	assert.Equal(t, int64(1100), data["amount"])
	assert.Equal(t, int64(1), data["sequence"])
	assert.Empty(t, watcherOut.Named(domain.EventBidPlaced))
}

func TestJoinAuction(t *testing.T) {
	env := newTestEnv(t)
	env.addAuction(t, "A1", 1000, 100, time.Hour)
	env.addAuction(t, "ended", 1000, 100, -time.Minute)
	ctx := context.Background()

	s1, out1 := authedSession("c1", "U1")
	state, err := env.coordinator.Join(ctx, s1, "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.ParticipantsCount)
	assert.Equal(t, int64(1000), state.CurrentPrice)

	s2, _ := authedSession("c2", "U2")
	state, err = env.coordinator.Join(ctx, s2, "A1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.ParticipantsCount)

	data, ok := out1.Last(domain.EventParticipantsUpdated)
	require.True(t, ok)
	assert.Equal(t, 2, data["participantsCount"])

	_, err = env.coordinator.Join(ctx, s1, "missing")
	assert.True(t, domain.IsKind(err, domain.KindAuctionNotFound))

	_, err = env.coordinator.Join(ctx, s1, "ended")
	assert.True(t, domain.IsKind(err, domain.KindAuctionEnded))

	assert.True(t, env.coordinator.Leave(s2, "A1"))
	assert.False(t, env.coordinator.Leave(s2, "A1"))
	data, ok = out1.Last(domain.EventAuctionLeft)
	require.True(t, ok)
	assert.Equal(t, "U2", data["userId"])
	assert.Equal(t, 1, data["participantsCount"])
}
