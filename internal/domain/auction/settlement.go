package auction

import (
	"time"

	"veles-auction-engine/internal/domain/bid"

	"github.com/google/uuid"
)

// Outcome classifies how an auction concluded
type Outcome string

const (
	OutcomeSold          Outcome = "sold"
	OutcomeReserveNotMet Outcome = "reserve_not_met"
	OutcomeNoBids        Outcome = "no_bids"
	OutcomeCancelled     Outcome = "cancelled"
)

// Settlement is the single immutable terminal record of an auction. It is
// produced exactly once and consumed by the external sale subsystem.
type Settlement struct {
	AuctionID  uuid.UUID `json:"auction_id"`
	VehicleRef string    `json:"vehicle_ref"`
	Outcome    Outcome   `json:"outcome"`
	WinningBid *bid.Bid  `json:"winning_bid,omitempty"`
	FinalPrice *float64  `json:"final_price,omitempty"`
	SettledAt  time.Time `json:"settled_at"`
}

// Sold returns true if the settlement carries a winning bid
func (s *Settlement) Sold() bool {
	return s.Outcome == OutcomeSold
}
