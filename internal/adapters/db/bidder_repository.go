package db

import (
	"context"
	"database/sql"
	"fmt"

	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// BidderRepository resolves bidder identities before bids enter the engine
type BidderRepository struct {
	conn *Connection
}

// NewBidderRepository creates a new bidder repository
func NewBidderRepository(conn *Connection) *BidderRepository {
	return &BidderRepository{conn: conn}
}

func (r *BidderRepository) GetByID(ctx context.Context, id uuid.UUID) (*shared.Bidder, error) {
	query := `
		SELECT id, name
		FROM bidders
		WHERE id = $1
	`

	var b shared.Bidder
	err := r.conn.DB().QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrBidderNotFound
		}
		return nil, fmt.Errorf("failed to get bidder: %w", err)
	}

	return &b, nil
}

func (r *BidderRepository) Create(ctx context.Context, b *shared.Bidder) error {
	query := `
		INSERT INTO bidders (id, name)
		VALUES ($1, $2)
	`

	if _, err := r.conn.DB().ExecContext(ctx, query, b.ID, b.Name); err != nil {
		return fmt.Errorf("failed to create bidder: %w", err)
	}

	return nil
}
