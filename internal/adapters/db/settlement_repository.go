package db

import (
	"context"
	"database/sql"
	"fmt"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"

	"github.com/google/uuid"
)

// SettlementRepository stores the append-once terminal record per auction.
// The auction_id primary key plus ON CONFLICT DO NOTHING gives the
// exactly-once guarantee a re-delivered terminal transition relies on.
type SettlementRepository struct {
	conn *Connection
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(conn *Connection) *SettlementRepository {
	return &SettlementRepository{conn: conn}
}

func (r *SettlementRepository) Create(ctx context.Context, s *auction.Settlement) error {
	query := `
		INSERT INTO settlements (auction_id, vehicle_ref, outcome, winning_bid_id, final_price, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auction_id) DO NOTHING
	`

	var winningBidID *uuid.UUID
	if s.WinningBid != nil {
		winningBidID = &s.WinningBid.ID
	}

	_, err := r.conn.DB().ExecContext(ctx, query,
		s.AuctionID,
		s.VehicleRef,
		s.Outcome,
		winningBidID,
		s.FinalPrice,
		s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	return nil
}

func (r *SettlementRepository) GetByAuctionID(ctx context.Context, auctionID uuid.UUID) (*auction.Settlement, error) {
	query := `
		SELECT s.auction_id, s.vehicle_ref, s.outcome, s.final_price, s.settled_at,
			b.id, b.auction_id, b.bidder_id, b.amount, b.client_token, b.submitted_at, b.accepted, b.winning
		FROM settlements s
		LEFT JOIN bids b ON b.id = s.winning_bid_id
		WHERE s.auction_id = $1
	`

	var s auction.Settlement
	var winning struct {
		id          *uuid.UUID
		auctionID   *uuid.UUID
		bidderID    *uuid.UUID
		amount      *float64
		clientToken *string
		submittedAt sql.NullTime
		accepted    *bool
		winningFlag *bool
	}

	err := r.conn.DB().QueryRowContext(ctx, query, auctionID).Scan(
		&s.AuctionID,
		&s.VehicleRef,
		&s.Outcome,
		&s.FinalPrice,
		&s.SettledAt,
		&winning.id,
		&winning.auctionID,
		&winning.bidderID,
		&winning.amount,
		&winning.clientToken,
		&winning.submittedAt,
		&winning.accepted,
		&winning.winningFlag,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("settlement not found for auction %s", auctionID)
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	if winning.id != nil {
		s.WinningBid = &bid.Bid{
			ID:          *winning.id,
			AuctionID:   *winning.auctionID,
			BidderID:    *winning.bidderID,
			Amount:      *winning.amount,
			SubmittedAt: winning.submittedAt.Time,
			Accepted:    *winning.accepted,
			Winning:     *winning.winningFlag,
		}
		if winning.clientToken != nil {
			s.WinningBid.ClientToken = *winning.clientToken
		}
	}

	return &s, nil
}
