package app

import (
	"context"
	"sync"
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/shared"
	"veles-auction-engine/internal/ports/inbound"
	"veles-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine is the bid intake gateway and the registry of auction actors. It
// validates requests and resolves external references (bidder identity,
// vehicle catalog entry) before entering an actor's critical section, then
// routes the request to the owning actor. It holds no auction state itself.
type Engine struct {
	auctionRepo    outbound.AuctionRepository
	settlementRepo outbound.SettlementRepository
	vehicleRepo    outbound.VehicleRepository
	bidderRepo     outbound.BidderRepository
	broadcaster    outbound.Broadcaster
	deadlines      outbound.DeadlineIndex
	emitter        *SettlementEmitter

	actors   map[uuid.UUID]*Actor
	actorsMu sync.RWMutex

	logger zerolog.Logger
	now    func() time.Time
}

type EngineParams struct {
	AuctionRepo    outbound.AuctionRepository
	SettlementRepo outbound.SettlementRepository
	VehicleRepo    outbound.VehicleRepository
	BidderRepo     outbound.BidderRepository
	Broadcaster    outbound.Broadcaster
	Deadlines      outbound.DeadlineIndex
	Logger         zerolog.Logger
	Now            func() time.Time
}

// NewEngine creates the bidding engine
func NewEngine(params EngineParams) *Engine {
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		auctionRepo:    params.AuctionRepo,
		settlementRepo: params.SettlementRepo,
		vehicleRepo:    params.VehicleRepo,
		bidderRepo:     params.BidderRepo,
		broadcaster:    params.Broadcaster,
		deadlines:      params.Deadlines,
		emitter: NewSettlementEmitter(SettlementEmitterParams{
			SettlementRepo: params.SettlementRepo,
			Broadcaster:    params.Broadcaster,
			Logger:         params.Logger,
		}),
		actors: make(map[uuid.UUID]*Actor),
		logger: params.Logger.With().Str("component", "bid_engine").Logger(),
		now:    now,
	}
}

// Recover rebuilds actors for every non-terminal auction and re-registers
// their next deadline, so clock-driven transitions survive a restart.
func (e *Engine) Recover(ctx context.Context) error {
	open, err := e.auctionRepo.ListOpen(ctx)
	if err != nil {
		return err
	}

	for _, a := range open {
		if _, err := e.spawnActor(a); err != nil {
			e.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to recover auction actor")
			continue
		}
		e.reindexDeadline(ctx, a.ID, a.Status, a.StartTime, a.EndTime)
	}

	e.logger.Info().Int("auctions", len(open)).Msg("Recovered open auctions")
	return nil
}

// Stop terminates every actor
func (e *Engine) Stop() {
	e.actorsMu.Lock()
	actors := make([]*Actor, 0, len(e.actors))
	for _, act := range e.actors {
		actors = append(actors, act)
	}
	e.actors = make(map[uuid.UUID]*Actor)
	e.actorsMu.Unlock()

	for _, act := range actors {
		act.Stop()
	}
}

// CreateAuction validates pricing and window parameters, resolves the
// vehicle reference, and creates the auction in draft
func (e *Engine) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	kind, err := auction.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, shared.ErrInvalidTimeFormat
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, shared.ErrInvalidTimeFormat
	}
	if !endTime.After(startTime) {
		return nil, shared.ErrInvalidWindow
	}

	if req.MinBid <= 0 {
		return nil, shared.ErrInvalidMinBid
	}
	if (kind == auction.KindEnglish || kind == auction.KindReverse) && req.BidIncrement <= 0 {
		return nil, shared.ErrInvalidIncrement
	}

	if _, err := e.vehicleRepo.GetByRef(ctx, req.VehicleRef); err != nil {
		e.logger.Warn().Err(err).Str("vehicle_ref", req.VehicleRef).Msg("Vehicle not found")
		return nil, shared.ErrVehicleNotFound
	}

	now := e.now()
	newAuction := &auction.Auction{
		ID:           uuid.New(),
		VehicleRef:   req.VehicleRef,
		Kind:         kind,
		Status:       auction.StatusDraft,
		StartTime:    startTime,
		EndTime:      endTime,
		MinBid:       req.MinBid,
		BidIncrement: req.BidIncrement,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ReservePrice != nil {
		reserve := *req.ReservePrice
		newAuction.ReservePrice = &reserve
	}
	// Dutch and reverse prices start at the opening price and move down;
	// English and sealed have no authoritative price until bids arrive
	if kind == auction.KindDutch || kind == auction.KindReverse {
		newAuction.CurrentPrice = req.MinBid
	}

	if err := e.auctionRepo.Create(ctx, newAuction); err != nil {
		e.logger.Error().Err(err).Str("auction_id", newAuction.ID.String()).Msg("Failed to persist auction")
		return nil, err
	}

	if _, err := e.spawnActor(newAuction); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("auction_id", newAuction.ID.String()).
		Str("kind", string(kind)).
		Str("vehicle_ref", req.VehicleRef).
		Float64("min_bid", req.MinBid).
		Msg("Auction created")

	e.publishCreated(ctx, newAuction)
	return newAuction, nil
}

// ScheduleAuction moves a draft auction to scheduled and records its start
// deadline
func (e *Engine) ScheduleAuction(ctx context.Context, auctionID uuid.UUID) error {
	act, err := e.actor(ctx, auctionID)
	if err != nil {
		return err
	}
	if err := act.Transition(ctx, auction.StatusScheduled); err != nil {
		return err
	}

	snap, err := act.Snapshot(ctx)
	if err == nil && e.deadlines != nil {
		if err := e.deadlines.Schedule(ctx, auctionID, snap.StartTime); err != nil {
			e.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to index start deadline")
		}
	}
	return nil
}

// PauseAuction suspends bidding on an active auction
func (e *Engine) PauseAuction(ctx context.Context, auctionID uuid.UUID) error {
	act, err := e.actor(ctx, auctionID)
	if err != nil {
		return err
	}
	return act.Transition(ctx, auction.StatusPaused)
}

// ResumeAuction reopens bidding on a paused auction
func (e *Engine) ResumeAuction(ctx context.Context, auctionID uuid.UUID) error {
	act, err := e.actor(ctx, auctionID)
	if err != nil {
		return err
	}
	return act.Transition(ctx, auction.StatusActive)
}

// CancelAuction terminates an auction through its serialization point, so
// cancellation cannot race an in-flight bid. The settlement emitter still
// runs with outcome cancelled.
func (e *Engine) CancelAuction(ctx context.Context, auctionID uuid.UUID) error {
	act, err := e.actor(ctx, auctionID)
	if err != nil {
		return err
	}
	if err := act.Transition(ctx, auction.StatusCancelled); err != nil {
		return err
	}
	e.reapActor(act)

	if e.deadlines != nil {
		if err := e.deadlines.Remove(ctx, auctionID); err != nil {
			e.logger.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to drop deadline index entry")
		}
	}
	return nil
}

// PlaceBid validates the submission, resolves the bidder identity outside
// the critical section, routes the bid to the owning actor, and translates
// the actor's outcome into a bid response
func (e *Engine) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*inbound.BidResult, error) {
	if req.Amount <= 0 {
		return nil, shared.ErrBidAmountInvalid
	}

	if _, err := e.bidderRepo.GetByID(ctx, req.BidderID); err != nil {
		e.logger.Warn().Err(err).Str("bidder_id", req.BidderID.String()).Msg("Bidder not found")
		return nil, shared.ErrBidderNotFound
	}

	act, err := e.actor(ctx, req.AuctionID)
	if err != nil {
		return e.rejectOrFail(err)
	}

	bidID, price, err := act.PlaceBid(ctx, req.BidderID, req.Amount, req.ClientToken)
	if err != nil {
		return e.rejectOrFail(err)
	}

	return &inbound.BidResult{
		Accepted:     true,
		BidID:        &bidID,
		CurrentPrice: &price,
	}, nil
}

// GetAuction returns a consistent snapshot: live auctions are read through
// their actor, settled ones straight from the store
func (e *Engine) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Snapshot, error) {
	e.actorsMu.RLock()
	act, ok := e.actors[auctionID]
	e.actorsMu.RUnlock()

	if ok {
		return act.Snapshot(ctx)
	}

	stored, err := e.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, shared.ErrAuctionNotFound
	}
	if stored.Terminal() && stored.Settlement == nil && e.settlementRepo != nil {
		if settlement, err := e.settlementRepo.GetByAuctionID(ctx, auctionID); err == nil {
			stored.Settlement = settlement
		}
	}
	return stored.Snapshot(), nil
}

// ListAuctions retrieves a page of auctions
func (e *Engine) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	return e.auctionRepo.List(ctx, req.Status, req.Page, req.PageSize)
}

// TickAll routes one clock tick through every registered actor and keeps the
// deadline index aligned with the observed state. Actors tick in parallel;
// ordering only matters within one auction.
func (e *Engine) TickAll(ctx context.Context, now time.Time) {
	e.respawnDue(ctx, now)

	e.actorsMu.RLock()
	actors := make([]*Actor, 0, len(e.actors))
	for _, act := range e.actors {
		actors = append(actors, act)
	}
	e.actorsMu.RUnlock()

	var wg sync.WaitGroup
	for _, act := range actors {
		wg.Add(1)
		go func(act *Actor) {
			defer wg.Done()

			if err := act.Tick(ctx, now); err != nil {
				e.logger.Warn().Err(err).Str("auction_id", act.ID().String()).Msg("Tick failed")
				return
			}

			snap, err := act.Snapshot(ctx)
			if err != nil {
				return
			}
			e.reindexDeadline(ctx, snap.ID, snap.Status, snap.StartTime, snap.EndTime)

			if snap.Status.Terminal() {
				e.reapActor(act)
			}
		}(act)
	}
	wg.Wait()
}

// respawnDue rebuilds actors for due auctions missing from the registry.
// An entry can outlive its actor when a previous process crashed between
// the durable write and recovery; the index is the source of truth for
// pending transitions.
func (e *Engine) respawnDue(ctx context.Context, now time.Time) {
	if e.deadlines == nil {
		return
	}

	due, err := e.deadlines.Due(ctx, now, 100)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read due deadlines")
		return
	}

	for _, id := range due {
		e.actorsMu.RLock()
		_, known := e.actors[id]
		e.actorsMu.RUnlock()
		if known {
			continue
		}

		stored, err := e.auctionRepo.GetByID(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Str("auction_id", id.String()).Msg("Due auction not loadable, dropping index entry")
			if err := e.deadlines.Remove(ctx, id); err != nil {
				e.logger.Warn().Err(err).Str("auction_id", id.String()).Msg("Failed to drop deadline index entry")
			}
			continue
		}
		if stored.Terminal() {
			if err := e.deadlines.Remove(ctx, id); err != nil {
				e.logger.Warn().Err(err).Str("auction_id", id.String()).Msg("Failed to drop deadline index entry")
			}
			continue
		}

		if _, err := e.spawnActor(stored); err != nil {
			e.logger.Error().Err(err).Str("auction_id", id.String()).Msg("Failed to respawn due auction actor")
		}
	}
}

func (e *Engine) reindexDeadline(ctx context.Context, id uuid.UUID, status auction.Status, startTime, endTime time.Time) {
	if e.deadlines == nil {
		return
	}

	var err error
	switch status {
	case auction.StatusScheduled:
		err = e.deadlines.Schedule(ctx, id, startTime)
	case auction.StatusActive, auction.StatusPaused:
		err = e.deadlines.Schedule(ctx, id, endTime)
	case auction.StatusEnded, auction.StatusCancelled:
		err = e.deadlines.Remove(ctx, id)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("auction_id", id.String()).Msg("Failed to update deadline index")
	}
}

// actor resolves the serialization point for an auction. Settled auctions
// have no actor anymore; their requests are answered from the store. A
// non-terminal auction missing from the registry is respawned.
func (e *Engine) actor(ctx context.Context, auctionID uuid.UUID) (*Actor, error) {
	e.actorsMu.RLock()
	act, ok := e.actors[auctionID]
	e.actorsMu.RUnlock()
	if ok {
		return act, nil
	}

	stored, err := e.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, shared.ErrAuctionNotFound
	}
	if stored.Terminal() {
		return nil, shared.ErrAuctionAlreadySettled
	}
	return e.spawnActor(stored)
}

// reapActor retires a settled auction's actor so the registry only ticks
// live auctions
func (e *Engine) reapActor(act *Actor) {
	e.actorsMu.Lock()
	if current, ok := e.actors[act.ID()]; !ok || current != act {
		e.actorsMu.Unlock()
		return
	}
	delete(e.actors, act.ID())
	e.actorsMu.Unlock()

	act.Stop()
}

func (e *Engine) spawnActor(a *auction.Auction) (*Actor, error) {
	act, err := NewActor(ActorParams{
		Auction:     a,
		Repo:        e.auctionRepo,
		Emitter:     e.emitter,
		Broadcaster: e.broadcaster,
		Logger:      e.logger,
		Now:         e.now,
	})
	if err != nil {
		return nil, err
	}

	e.actorsMu.Lock()
	if existing, ok := e.actors[a.ID]; ok {
		e.actorsMu.Unlock()
		return existing, nil
	}
	e.actors[a.ID] = act
	e.actorsMu.Unlock()

	act.Start()
	return act, nil
}

func (e *Engine) rejectOrFail(err error) (*inbound.BidResult, error) {
	if reason, ok := shared.ReasonFor(err); ok {
		return &inbound.BidResult{Accepted: false, Reason: reason}, nil
	}
	return nil, err
}

func (e *Engine) publishCreated(ctx context.Context, a *auction.Auction) {
	if e.broadcaster == nil {
		return
	}

	event := outbound.Event{
		Type:      outbound.EventTypeAuctionCreated,
		AuctionID: a.ID,
		Data: map[string]interface{}{
			"vehicle_ref": a.VehicleRef,
			"kind":        string(a.Kind),
			"start_time":  a.StartTime.Unix(),
			"end_time":    a.EndTime.Unix(),
			"min_bid":     a.MinBid,
		},
		Timestamp: e.now().Unix(),
	}

	if err := e.broadcaster.Publish(ctx, a.ID, event); err != nil {
		e.logger.Warn().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to broadcast auction creation")
	}
}
