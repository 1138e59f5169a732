package strategy

import (
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
)

// English is the ascending open-outcry rule set: each bid must raise the
// current price by at least the increment, and the auction runs to its end
// time with the latest accepted bid winning.
type English struct{}

func (English) Kind() auction.Kind {
	return auction.KindEnglish
}

func (English) Accepts(snap *auction.Snapshot, b *bid.Bid) error {
	if err := activeWithinWindow(snap, b); err != nil {
		return err
	}

	// The first bid competes against the minimum bid, later ones against
	// current price plus increment
	minimum := snap.MinBid
	if len(snap.Ledger) > 0 {
		minimum = snap.CurrentPrice + snap.BidIncrement
	}
	if b.Amount < minimum {
		return shared.ErrBidTooLow
	}
	return nil
}

func (English) Apply(snap *auction.Snapshot, b *bid.Bid) Decision {
	return Decision{
		NewPrice:  b.Amount,
		Concludes: false,
		Winning:   true,
	}
}
