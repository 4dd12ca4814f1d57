package domain

import (
	"strings"
	"time"
)

type AuctionStatus string

const (
	AuctionUpcoming  AuctionStatus = "UPCOMING"
	AuctionLive      AuctionStatus = "LIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCancelled AuctionStatus = "CANCELLED"
	AuctionSuspended AuctionStatus = "SUSPENDED"
)

// ParseAuctionStatus normalizes stored status strings. Legacy rows use ACTIVE for LIVE.
func ParseAuctionStatus(s string) AuctionStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIVE", "ACTIVE":
		return AuctionLive
	case "UPCOMING", "SCHEDULED":
		return AuctionUpcoming
	case "ENDED", "CLOSED":
		return AuctionEnded
	case "CANCELLED", "CANCELED":
		return AuctionCancelled
	case "SUSPENDED":
		return AuctionSuspended
	default:
		return AuctionStatus(strings.ToUpper(s))
	}
}

// AuctionState is read from the store for one request and never cached beyond it.
type AuctionState struct {
	AuctionID           string        `json:"auction_id"`
	Status              AuctionStatus `json:"status"`
	CurrentPrice        int64         `json:"current_price"`
	StartingPrice       int64         `json:"starting_price"`
	MinimumBidIncrement int64         `json:"minimum_bid_increment"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             time.Time     `json:"end_time"`
	LastBidder          string        `json:"last_bidder,omitempty"`
	ParticipantsCount   int           `json:"participants_count"`
	BidsCount           int64         `json:"bids_count"`
}

// HasEnded treats the clock as authoritative over the stored status.
func (a *AuctionState) HasEnded(now time.Time) bool {
	if a.Status == AuctionEnded || a.Status == AuctionCancelled {
		return true
	}
	return !a.EndTime.IsZero() && !now.Before(a.EndTime)
}

// AcceptsBids reports whether a bid may be validated against this state at now.
func (a *AuctionState) AcceptsBids(now time.Time) bool {
	return a.Status == AuctionLive && !a.HasEnded(now)
}

// MinimumBid is the smallest amount the next bid may carry.
func (a *AuctionState) MinimumBid(floor int64) int64 {
	inc := a.MinimumBidIncrement
	if floor > inc {
		inc = floor
	}
	price := a.CurrentPrice
	if price < a.StartingPrice {
		price = a.StartingPrice
	}
	return price + inc
}

// BidAttempt is what the coordinator asks the store to commit. ExpectedPrice is the
// price the attempt was validated against; the store refuses the write if it moved.
type BidAttempt struct {
	AuctionID     string
	BidderID      string
	Amount        int64
	ExpectedPrice int64
}

type Bid struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	BidderID   string    `json:"bidder_id"`
	Amount     int64     `json:"amount"`
	Sequence   int64     `json:"sequence"`
	AcceptedAt time.Time `json:"accepted_at"`
}
