package strategy

import (
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
)

// Sealed is the sealed-envelope rule set: any bid at or above the minimum is
// accepted before the end time, the price is never revealed while bidding is
// open, and the highest bid is selected at settlement.
type Sealed struct{}

func (Sealed) Kind() auction.Kind {
	return auction.KindSealed
}

func (Sealed) Accepts(snap *auction.Snapshot, b *bid.Bid) error {
	if err := activeWithinWindow(snap, b); err != nil {
		return err
	}
	if b.Amount < snap.MinBid {
		return shared.ErrBidTooLow
	}
	return nil
}

func (Sealed) Apply(snap *auction.Snapshot, b *bid.Bid) Decision {
	// Sealed bids are stored without moving the visible price or the
	// winning flag; the winner is picked at settlement.
	return Decision{
		NewPrice:  snap.CurrentPrice,
		Concludes: false,
		Winning:   false,
	}
}

// SealedWinner picks the winning entry out of a sealed ledger: highest
// amount, ties broken by earliest submission. Returns nil for an empty
// ledger.
func SealedWinner(ledger []*bid.Bid) *bid.Bid {
	var best *bid.Bid
	for _, b := range ledger {
		if !b.Accepted {
			continue
		}
		if best == nil || b.Amount > best.Amount ||
			(b.Amount == best.Amount && b.SubmittedAt.Before(best.SubmittedAt)) {
			best = b
		}
	}
	return best
}
