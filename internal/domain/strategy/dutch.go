package strategy

import (
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
)

// Dutch is the descending-price rule set: the price decays from the opening
// price toward the floor on a curve fixed at creation, and the first
// acceptable bid wins and ends the auction immediately.
type Dutch struct{}

func (Dutch) Kind() auction.Kind {
	return auction.KindDutch
}

func (Dutch) Accepts(snap *auction.Snapshot, b *bid.Bid) error {
	if err := activeWithinWindow(snap, b); err != nil {
		return err
	}
	// The clock recomputes CurrentPrice on every tick, so this compares
	// against the decayed price. A bid below it means the price has not
	// dropped far enough yet.
	if b.Amount < snap.CurrentPrice {
		return shared.ErrBidTooHigh
	}
	return nil
}

func (Dutch) Apply(snap *auction.Snapshot, b *bid.Bid) Decision {
	return Decision{
		NewPrice:  b.Amount,
		Concludes: true,
		Winning:   true,
	}
}

// Curve is the price decay schedule of a Dutch auction, fixed at creation:
// a linear slide from the opening price at the window start down to the
// floor at the window end.
type Curve struct {
	Open  float64
	Floor float64
	Start time.Time
	End   time.Time
}

// CurveFor derives the decay curve from auction parameters. The minimum bid
// is the opening price; the reserve price, when present, is the floor.
func CurveFor(a *auction.Auction) Curve {
	curve := Curve{
		Open:  a.MinBid,
		Start: a.StartTime,
		End:   a.EndTime,
	}
	if a.ReservePrice != nil {
		curve.Floor = *a.ReservePrice
	}
	return curve
}

// PriceAt returns the decayed price at time t, clamped to the window
func (c Curve) PriceAt(t time.Time) float64 {
	if !t.After(c.Start) {
		return c.Open
	}
	if !t.Before(c.End) {
		return c.Floor
	}
	window := c.End.Sub(c.Start).Seconds()
	if window <= 0 {
		return c.Floor
	}
	elapsed := t.Sub(c.Start).Seconds()
	return c.Open - (c.Open-c.Floor)*(elapsed/window)
}
