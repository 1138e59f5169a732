package auction

import (
	"time"

	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// Kind fixes the acceptance and conclusion rules of an auction.
type Kind string

const (
	KindEnglish Kind = "english"
	KindDutch   Kind = "dutch"
	KindSealed  Kind = "sealed"
	KindReverse Kind = "reverse"
)

// ParseKind converts a wire string into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindEnglish, KindDutch, KindSealed, KindReverse:
		return Kind(s), nil
	default:
		return "", shared.ErrUnknownKind
	}
}

// Status represents the lifecycle stage of an auction
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Terminal returns true if no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// transitions is the closed state machine table. Cancellation is allowed
// from any non-terminal state.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusActive, StatusCancelled},
	StatusActive:    {StatusPaused, StatusEnded, StatusCancelled},
	StatusPaused:    {StatusActive, StatusEnded, StatusCancelled},
}

// CanTransition reports whether the state machine permits from -> to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Auction represents one competitive sale process bound to exactly one vehicle.
// Price, ledger and status are only ever mutated by the owning actor.
type Auction struct {
	ID           uuid.UUID   `json:"id"`
	VehicleRef   string      `json:"vehicle_ref"`
	Kind         Kind        `json:"kind"`
	Status       Status      `json:"status"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	MinBid       float64     `json:"min_bid"`
	BidIncrement float64     `json:"bid_increment"`
	ReservePrice *float64    `json:"reserve_price,omitempty"`
	CurrentPrice float64     `json:"current_price"`
	Ledger       []*bid.Bid  `json:"ledger"`
	Settlement   *Settlement `json:"settlement,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsActive returns true if the auction is currently accepting bids
func (a *Auction) IsActive() bool {
	return a.Status == StatusActive
}

// Terminal returns true if the auction reached a terminal status
func (a *Auction) Terminal() bool {
	return a.Status.Terminal()
}

// HasReserve reports whether a reserve price is set. Absence of a reserve
// means "no reserve"; a present value of 0 is a reserve of zero.
func (a *Auction) HasReserve() bool {
	return a.ReservePrice != nil
}

// WithinWindow reports whether t falls inside the bidding window
func (a *Auction) WithinWindow(t time.Time) bool {
	return !t.Before(a.StartTime) && t.Before(a.EndTime)
}

// Transition moves the auction to the given status after consulting the
// state machine table
func (a *Auction) Transition(to Status) error {
	if a.Status.Terminal() {
		return shared.ErrAuctionAlreadySettled
	}
	if !CanTransition(a.Status, to) {
		return shared.ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return nil
}

// WinningBid returns the ledger entry currently flagged winning, if any
func (a *Auction) WinningBid() *bid.Bid {
	for _, b := range a.Ledger {
		if b.Winning {
			return b
		}
	}
	return nil
}

// ClearWinning drops the winning flag from every ledger entry so a newly
// accepted bid can take it over
func (a *Auction) ClearWinning() {
	for _, b := range a.Ledger {
		b.Winning = false
	}
}

// AppendBid appends an accepted bid to the ledger and advances the price
func (a *Auction) AppendBid(b *bid.Bid, newPrice float64) {
	if b.Winning {
		a.ClearWinning()
	}
	a.Ledger = append(a.Ledger, b)
	a.CurrentPrice = newPrice
	a.UpdatedAt = time.Now()
}

// Snapshot is a read-only copy of an auction handed to strategies and
// external observers. Ledger entries are copied by value.
type Snapshot struct {
	ID           uuid.UUID
	VehicleRef   string
	Kind         Kind
	Status       Status
	StartTime    time.Time
	EndTime      time.Time
	MinBid       float64
	BidIncrement float64
	ReservePrice *float64
	CurrentPrice float64
	Ledger       []bid.Bid
	Settlement   *Settlement
}

// Snapshot produces a consistent read-only copy of the auction state
func (a *Auction) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:           a.ID,
		VehicleRef:   a.VehicleRef,
		Kind:         a.Kind,
		Status:       a.Status,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		MinBid:       a.MinBid,
		BidIncrement: a.BidIncrement,
		CurrentPrice: a.CurrentPrice,
		Ledger:       make([]bid.Bid, 0, len(a.Ledger)),
	}
	if a.ReservePrice != nil {
		reserve := *a.ReservePrice
		snap.ReservePrice = &reserve
	}
	for _, b := range a.Ledger {
		snap.Ledger = append(snap.Ledger, *b)
	}
	if a.Settlement != nil {
		settlement := *a.Settlement
		snap.Settlement = &settlement
	}
	return snap
}
