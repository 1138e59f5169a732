package outbound

import (
	"context"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// AuctionRepository defines the durable store behind the engine. Writes are
// issued only from inside an auction's serialization domain; a write failure
// must leave the stored state unchanged so the actor can abort the in-flight
// mutation.
type AuctionRepository interface {
	// Create persists a new auction
	Create(ctx context.Context, a *auction.Auction) error

	// GetByID retrieves an auction together with its bid ledger
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// ListOpen retrieves every auction not in a terminal status, used to
	// rebuild actors after a restart
	ListOpen(ctx context.Context) ([]*auction.Auction, error)

	// List retrieves a page of auctions with an optional status filter
	List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error)

	// UpdateStatus persists a lifecycle transition
	UpdateStatus(ctx context.Context, id uuid.UUID, status auction.Status) error

	// UpdatePrice persists a clock-driven price change (Dutch decay)
	UpdatePrice(ctx context.Context, id uuid.UUID, price float64) error

	// AppendBid atomically appends an accepted bid, moves the winning flag
	// when the bid takes it, and advances the current price
	AppendBid(ctx context.Context, b *bid.Bid, newPrice float64) error

	// MarkWinning flags one ledger entry as winning and sets the final
	// price, used for sealed winner selection at settlement
	MarkWinning(ctx context.Context, auctionID, bidID uuid.UUID, finalPrice float64) error
}

// SettlementRepository stores the append-once terminal record per auction.
// Create must be idempotent on auction ID so a re-delivered terminal
// transition cannot produce a second settlement.
type SettlementRepository interface {
	Create(ctx context.Context, s *auction.Settlement) error
	GetByAuctionID(ctx context.Context, auctionID uuid.UUID) (*auction.Settlement, error)
}

// VehicleRepository resolves catalog references before a bid or auction
// enters the serialized core
type VehicleRepository interface {
	GetByRef(ctx context.Context, ref string) (*shared.Vehicle, error)
	Create(ctx context.Context, v *shared.Vehicle) error
}

// BidderRepository resolves bidder identities before a bid enters the
// serialized core
type BidderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*shared.Bidder, error)
	Create(ctx context.Context, b *shared.Bidder) error
}
