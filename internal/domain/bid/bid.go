package bid

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an immutable, append-only ledger record. Rejected bids are never
// appended to an auction ledger; they only exist as rejection responses.
type Bid struct {
	ID          uuid.UUID `json:"id"`
	AuctionID   uuid.UUID `json:"auction_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	Amount      float64   `json:"amount"`
	ClientToken string    `json:"client_token,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Accepted    bool      `json:"accepted"`
	Winning     bool      `json:"winning"`
}

// New creates an unaccepted bid record for an incoming submission
func New(auctionID, bidderID uuid.UUID, amount float64, clientToken string, submittedAt time.Time) *Bid {
	return &Bid{
		ID:          uuid.New(),
		AuctionID:   auctionID,
		BidderID:    bidderID,
		Amount:      amount,
		ClientToken: clientToken,
		SubmittedAt: submittedAt,
	}
}

// Accept marks the bid as part of the accepted ledger
func (b *Bid) Accept(winning bool) {
	b.Accepted = true
	b.Winning = winning
}
