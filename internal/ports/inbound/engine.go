package inbound

import (
	"context"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// BidEngine defines the externally-facing bid intake and lifecycle surface.
// Every operation on a given auction is routed through that auction's
// serialization point.
type BidEngine interface {
	// CreateAuction creates a new auction in draft
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// ScheduleAuction moves a draft auction to scheduled
	ScheduleAuction(ctx context.Context, auctionID uuid.UUID) error

	// PauseAuction suspends bidding on an active auction
	PauseAuction(ctx context.Context, auctionID uuid.UUID) error

	// ResumeAuction reopens bidding on a paused auction
	ResumeAuction(ctx context.Context, auctionID uuid.UUID) error

	// CancelAuction terminates an auction; a settlement with outcome
	// cancelled is still produced
	CancelAuction(ctx context.Context, auctionID uuid.UUID) error

	// PlaceBid submits a bid and returns the accept/reject outcome
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error)

	// GetAuction returns a consistent snapshot of an auction
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Snapshot, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	VehicleRef   string   `json:"vehicle_ref"`
	Kind         string   `json:"kind"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	MinBid       float64  `json:"min_bid"`
	BidIncrement float64  `json:"bid_increment"`
	ReservePrice *float64 `json:"reserve_price,omitempty"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID   uuid.UUID `json:"auction_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	Amount      float64   `json:"amount"`
	ClientToken string    `json:"client_token,omitempty"`
}

// BidResult is the synchronous outcome of a bid submission
type BidResult struct {
	Accepted     bool          `json:"accepted"`
	BidID        *uuid.UUID    `json:"bid_id,omitempty"`
	CurrentPrice *float64      `json:"current_price,omitempty"`
	Reason       shared.Reason `json:"reason,omitempty"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status   *auction.Status `json:"status,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}
