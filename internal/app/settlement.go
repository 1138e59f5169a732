package app

import (
	"context"
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// SettlementEmitter produces the single immutable settlement record of an
// auction and emits the outbound event consumed by the external sale and
// notification subsystems. It is only ever invoked from inside an auction's
// serialization domain, at the moment of the terminal transition.
type SettlementEmitter struct {
	settlementRepo outbound.SettlementRepository
	broadcaster    outbound.Broadcaster
	logger         zerolog.Logger
}

type SettlementEmitterParams struct {
	SettlementRepo outbound.SettlementRepository
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewSettlementEmitter creates a new settlement emitter
func NewSettlementEmitter(params SettlementEmitterParams) *SettlementEmitter {
	return &SettlementEmitter{
		settlementRepo: params.SettlementRepo,
		broadcaster:    params.Broadcaster,
		logger:         params.Logger.With().Str("component", "settlement_emitter").Logger(),
	}
}

// Build decides the settlement outcome for an auction reaching the given
// terminal status. It is pure: no state is touched.
//
// An absent reserve price means "no reserve"; a present reserve of 0 is a
// reserve of zero. For reverse auctions the reserve is a maximum, so a
// winning bid above it fails the reserve.
func (e *SettlementEmitter) Build(a *auction.Auction, terminal auction.Status, at time.Time) *auction.Settlement {
	settlement := &auction.Settlement{
		AuctionID:  a.ID,
		VehicleRef: a.VehicleRef,
		SettledAt:  at,
	}

	if terminal == auction.StatusCancelled {
		settlement.Outcome = auction.OutcomeCancelled
		return settlement
	}

	winner := a.WinningBid()
	if winner == nil {
		settlement.Outcome = auction.OutcomeNoBids
		return settlement
	}

	if a.HasReserve() {
		reserve := *a.ReservePrice
		reserveMissed := winner.Amount < reserve
		if a.Kind == auction.KindReverse {
			reserveMissed = winner.Amount > reserve
		}
		if reserveMissed {
			settlement.Outcome = auction.OutcomeReserveNotMet
			return settlement
		}
	}

	winning := *winner
	finalPrice := winner.Amount
	settlement.Outcome = auction.OutcomeSold
	settlement.WinningBid = &winning
	settlement.FinalPrice = &finalPrice
	return settlement
}

// Persist durably records the settlement. The repository guarantees
// append-once semantics per auction, which makes a re-delivered terminal
// transition harmless.
func (e *SettlementEmitter) Persist(ctx context.Context, s *auction.Settlement) error {
	if err := e.settlementRepo.Create(ctx, s); err != nil {
		return err
	}

	e.logger.Info().
		Str("auction_id", s.AuctionID.String()).
		Str("outcome", string(s.Outcome)).
		Msg("Settlement recorded")
	return nil
}

// Emit publishes the outbound settlement event. Delivery is at-least-once;
// consumers deduplicate on auction_id, so a failed publish is logged and
// left to redelivery rather than failing the settlement.
func (e *SettlementEmitter) Emit(ctx context.Context, s *auction.Settlement) {
	if e.broadcaster == nil {
		return
	}

	data := map[string]interface{}{
		"vehicle_ref": s.VehicleRef,
		"outcome":     string(s.Outcome),
		"settled_at":  s.SettledAt.Unix(),
	}
	if s.WinningBid != nil {
		data["winning_bid_id"] = s.WinningBid.ID.String()
		data["winner_id"] = s.WinningBid.BidderID.String()
	}
	if s.FinalPrice != nil {
		data["final_price"] = *s.FinalPrice
	}

	event := outbound.Event{
		Type:      outbound.EventTypeAuctionSettled,
		AuctionID: s.AuctionID,
		Data:      data,
		Timestamp: s.SettledAt.Unix(),
	}

	if err := e.broadcaster.Publish(ctx, s.AuctionID, event); err != nil {
		e.logger.Error().Err(err).Str("auction_id", s.AuctionID.String()).Msg("Failed to publish settlement event")
	}
}
