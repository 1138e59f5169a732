package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeadlineIndex is the durable record of upcoming clock-driven transitions.
// The engine rebuilds it on recovery so scheduled starts and ends survive a
// restart; the clock consults it to find auctions due for a transition.
type DeadlineIndex interface {
	// Schedule records the next transition deadline for an auction,
	// replacing any previous one
	Schedule(ctx context.Context, auctionID uuid.UUID, at time.Time) error

	// Remove drops an auction from the index once it is terminal
	Remove(ctx context.Context, auctionID uuid.UUID) error

	// Due returns auctions whose deadline is at or before now
	Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error)
}
