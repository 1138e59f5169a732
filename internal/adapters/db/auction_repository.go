package db

import (
	"context"
	"database/sql"
	"fmt"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// AuctionRepository implements the auction repository interface over
// Postgres. All mutating calls arrive from inside an auction's
// serialization domain, so no row-level locking is required; the
// transaction in AppendBid only guards atomicity of the multi-table write.
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (id, vehicle_ref, kind, status, start_time, end_time,
			min_bid, bid_increment, reserve_price, current_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.conn.DB().ExecContext(ctx, query,
		a.ID,
		a.VehicleRef,
		a.Kind,
		a.Status,
		a.StartTime,
		a.EndTime,
		a.MinBid,
		a.BidIncrement,
		a.ReservePrice,
		a.CurrentPrice,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `
		SELECT id, vehicle_ref, kind, status, start_time, end_time,
			min_bid, bid_increment, reserve_price, current_price, created_at, updated_at
		FROM auctions
		WHERE id = $1
	`

	a, err := r.scanAuction(r.conn.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	if err := r.loadLedger(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

// ListOpen retrieves every auction not in a terminal status, with ledgers,
// for actor recovery after a restart
func (r *AuctionRepository) ListOpen(ctx context.Context) ([]*auction.Auction, error) {
	query := `
		SELECT id, vehicle_ref, kind, status, start_time, end_time,
			min_bid, bid_increment, reserve_price, current_price, created_at, updated_at
		FROM auctions
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at
	`

	rows, err := r.conn.DB().QueryContext(ctx, query, auction.StatusEnded, auction.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to list open auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := r.collectAuctions(rows)
	if err != nil {
		return nil, err
	}

	for _, a := range auctions {
		if err := r.loadLedger(ctx, a); err != nil {
			return nil, err
		}
	}

	return auctions, nil
}

func (r *AuctionRepository) List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	offset := (page - 1) * pageSize

	var rows *sql.Rows
	var err error
	if status != nil {
		query := `
			SELECT id, vehicle_ref, kind, status, start_time, end_time,
				min_bid, bid_increment, reserve_price, current_price, created_at, updated_at
			FROM auctions
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = r.conn.DB().QueryContext(ctx, query, *status, pageSize, offset)
	} else {
		query := `
			SELECT id, vehicle_ref, kind, status, start_time, end_time,
				min_bid, bid_increment, reserve_price, current_price, created_at, updated_at
			FROM auctions
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		rows, err = r.conn.DB().QueryContext(ctx, query, pageSize, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	return r.collectAuctions(rows)
}

func (r *AuctionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status auction.Status) error {
	query := `UPDATE auctions SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.conn.DB().ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update auction status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return shared.ErrAuctionNotFound
	}

	return nil
}

func (r *AuctionRepository) UpdatePrice(ctx context.Context, id uuid.UUID, price float64) error {
	query := `UPDATE auctions SET current_price = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.conn.DB().ExecContext(ctx, query, id, price); err != nil {
		return fmt.Errorf("failed to update auction price: %w", err)
	}

	return nil
}

// AppendBid atomically appends an accepted bid, moves the winning flag when
// the bid takes it, and advances the current price
func (r *AuctionRepository) AppendBid(ctx context.Context, b *bid.Bid, newPrice float64) error {
	return r.conn.WithTransaction(func(tx *sql.Tx) error {
		if b.Winning {
			clearQuery := `UPDATE bids SET winning = FALSE WHERE auction_id = $1 AND winning`
			if _, err := tx.ExecContext(ctx, clearQuery, b.AuctionID); err != nil {
				return fmt.Errorf("failed to clear winning flag: %w", err)
			}
		}

		insertQuery := `
			INSERT INTO bids (id, auction_id, bidder_id, amount, client_token, submitted_at, accepted, winning)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.ExecContext(ctx, insertQuery,
			b.ID,
			b.AuctionID,
			b.BidderID,
			b.Amount,
			b.ClientToken,
			b.SubmittedAt,
			b.Accepted,
			b.Winning,
		)
		if err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		priceQuery := `UPDATE auctions SET current_price = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, priceQuery, b.AuctionID, newPrice); err != nil {
			return fmt.Errorf("failed to advance current price: %w", err)
		}

		return nil
	})
}

// MarkWinning flags one ledger entry as winning and sets the final price,
// used for sealed winner selection at settlement
func (r *AuctionRepository) MarkWinning(ctx context.Context, auctionID, bidID uuid.UUID, finalPrice float64) error {
	return r.conn.WithTransaction(func(tx *sql.Tx) error {
		clearQuery := `UPDATE bids SET winning = FALSE WHERE auction_id = $1 AND winning`
		if _, err := tx.ExecContext(ctx, clearQuery, auctionID); err != nil {
			return fmt.Errorf("failed to clear winning flag: %w", err)
		}

		markQuery := `UPDATE bids SET winning = TRUE WHERE id = $1 AND auction_id = $2`
		if _, err := tx.ExecContext(ctx, markQuery, bidID, auctionID); err != nil {
			return fmt.Errorf("failed to mark winning bid: %w", err)
		}

		priceQuery := `UPDATE auctions SET current_price = $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, priceQuery, auctionID, finalPrice); err != nil {
			return fmt.Errorf("failed to set final price: %w", err)
		}

		return nil
	})
}

// loadLedger attaches the accepted-bid ledger in insertion order
func (r *AuctionRepository) loadLedger(ctx context.Context, a *auction.Auction) error {
	query := `
		SELECT id, auction_id, bidder_id, amount, client_token, submitted_at, accepted, winning
		FROM bids
		WHERE auction_id = $1
		ORDER BY submitted_at, id
	`

	rows, err := r.conn.DB().QueryContext(ctx, query, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load bid ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b bid.Bid
		err := rows.Scan(
			&b.ID,
			&b.AuctionID,
			&b.BidderID,
			&b.Amount,
			&b.ClientToken,
			&b.SubmittedAt,
			&b.Accepted,
			&b.Winning,
		)
		if err != nil {
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		a.Ledger = append(a.Ledger, &b)
	}

	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AuctionRepository) scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	err := row.Scan(
		&a.ID,
		&a.VehicleRef,
		&a.Kind,
		&a.Status,
		&a.StartTime,
		&a.EndTime,
		&a.MinBid,
		&a.BidIncrement,
		&a.ReservePrice,
		&a.CurrentPrice,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuctionRepository) collectAuctions(rows *sql.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := r.scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}
