package strategy

import (
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
)

// Reverse is the descending competitive rule set, the mirror of English:
// bidders undercut each other, every accepted bid must be at least one
// increment below the current price, and the lowest bid wins at the end
// time.
type Reverse struct{}

func (Reverse) Kind() auction.Kind {
	return auction.KindReverse
}

func (Reverse) Accepts(snap *auction.Snapshot, b *bid.Bid) error {
	if err := activeWithinWindow(snap, b); err != nil {
		return err
	}

	// The first bid competes against the opening price, later ones must
	// undercut the current price by at least the increment
	maximum := snap.MinBid
	if len(snap.Ledger) > 0 {
		maximum = snap.CurrentPrice - snap.BidIncrement
	}
	if b.Amount > maximum {
		return shared.ErrBidTooHigh
	}
	return nil
}

func (Reverse) Apply(snap *auction.Snapshot, b *bid.Bid) Decision {
	return Decision{
		NewPrice:  b.Amount,
		Concludes: false,
		Winning:   true,
	}
}
