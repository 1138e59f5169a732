package strategy

import (
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
)

// Decision is the result of applying an acceptable bid to an auction
// snapshot: the new authoritative price, whether acceptance concludes the
// auction immediately, and whether the bid takes the winning flag.
type Decision struct {
	NewPrice  float64
	Concludes bool
	Winning   bool
}

// Strategy is the pure, stateless rule set for one auction kind. It is
// advisory to the auction actor and never mutates state itself.
type Strategy interface {
	Kind() auction.Kind

	// Accepts reports whether the bid is legal against the snapshot,
	// returning a typed rejection otherwise
	Accepts(snap *auction.Snapshot, b *bid.Bid) error

	// Apply computes the price update for an accepted bid. It must only be
	// called after Accepts returned nil.
	Apply(snap *auction.Snapshot, b *bid.Bid) Decision
}

var registry = map[auction.Kind]Strategy{
	auction.KindEnglish: English{},
	auction.KindDutch:   Dutch{},
	auction.KindSealed:  Sealed{},
	auction.KindReverse: Reverse{},
}

// ForKind returns the strategy for the given auction kind
func ForKind(kind auction.Kind) (Strategy, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, shared.ErrUnknownKind
	}
	return s, nil
}

// activeWithinWindow is the common gate shared by every kind: bids are only
// legal while the auction is active and the submission falls inside the
// bidding window.
func activeWithinWindow(snap *auction.Snapshot, b *bid.Bid) error {
	if snap.Status != auction.StatusActive {
		return shared.ErrAuctionNotActive
	}
	if b.SubmittedAt.Before(snap.StartTime) || !b.SubmittedAt.Before(snap.EndTime) {
		return shared.ErrAuctionNotActive
	}
	return nil
}
