package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
	"veles-auction-engine/internal/domain/strategy"
	"veles-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actor is the serialization domain of one auction: a single goroutine owns
// the auction's price, ledger and status, and every mutation - bids, clock
// ticks, operator actions - arrives as a mailbox command. Actors for
// different auctions run fully in parallel.
type Actor struct {
	state       *auction.Auction
	strategy    strategy.Strategy
	curve       strategy.Curve
	repo        outbound.AuctionRepository
	emitter     *SettlementEmitter
	broadcaster outbound.Broadcaster
	seenTokens  map[string]struct{}
	mailbox     chan interface{}
	quit        chan struct{}
	done        chan struct{}
	logger      zerolog.Logger
	now         func() time.Time

	// set when a conclusion could not be persisted; retried on the next
	// tick. The built settlement is kept so the retry persists and emits
	// the same record instead of rebuilding it with a fresh timestamp.
	pendingConclusion bool
	pendingSettlement *auction.Settlement
	pendingTerminal   auction.Status
}

type ActorParams struct {
	Auction     *auction.Auction
	Repo        outbound.AuctionRepository
	Emitter     *SettlementEmitter
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
	Now         func() time.Time
}

// mailbox commands; every reply channel is buffered so the run loop never blocks
type placeBidCmd struct {
	ctx   context.Context
	req   placeBidRequest
	reply chan placeBidReply
}

type placeBidRequest struct {
	BidderID    uuid.UUID
	Amount      float64
	ClientToken string
}

type placeBidReply struct {
	bidID uuid.UUID
	price float64
	err   error
}

type tickCmd struct {
	ctx   context.Context
	now   time.Time
	reply chan error
}

type transitionCmd struct {
	ctx   context.Context
	to    auction.Status
	reply chan error
}

type snapshotCmd struct {
	reply chan *auction.Snapshot
}

// NewActor creates the serialization domain for one auction. Idempotency
// tokens of already-accepted bids are re-seeded from the ledger so retries
// stay deduplicated across restarts.
func NewActor(params ActorParams) (*Actor, error) {
	strat, err := strategy.ForKind(params.Auction.Kind)
	if err != nil {
		return nil, err
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}

	a := &Actor{
		state:       params.Auction,
		strategy:    strat,
		curve:       strategy.CurveFor(params.Auction),
		repo:        params.Repo,
		emitter:     params.Emitter,
		broadcaster: params.Broadcaster,
		seenTokens:  make(map[string]struct{}),
		mailbox:     make(chan interface{}, 64),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		logger: params.Logger.With().
			Str("component", "auction_actor").
			Str("auction_id", params.Auction.ID.String()).
			Logger(),
		now: now,
	}

	for _, b := range params.Auction.Ledger {
		if b.ClientToken != "" {
			a.seenTokens[tokenKey(b.BidderID, b.Amount, b.ClientToken)] = struct{}{}
		}
	}

	return a, nil
}

// Start launches the actor's run loop
func (a *Actor) Start() {
	go a.run()
}

// Stop terminates the run loop and waits for it to drain
func (a *Actor) Stop() {
	close(a.quit)
	<-a.done
}

// ID returns the owned auction's ID
func (a *Actor) ID() uuid.UUID {
	return a.state.ID
}

func (a *Actor) run() {
	defer close(a.done)

	for {
		select {
		case msg := <-a.mailbox:
			switch cmd := msg.(type) {
			case placeBidCmd:
				cmd.reply <- a.handlePlaceBid(cmd.ctx, cmd.req)
			case tickCmd:
				cmd.reply <- a.handleTick(cmd.ctx, cmd.now)
			case transitionCmd:
				cmd.reply <- a.handleTransition(cmd.ctx, cmd.to)
			case snapshotCmd:
				cmd.reply <- a.state.Snapshot()
			}
		case <-a.quit:
			a.drain()
			return
		}
	}
}

// drain answers commands that were enqueued before the stop won the race,
// so no caller is left waiting on a reply
func (a *Actor) drain() {
	for {
		select {
		case msg := <-a.mailbox:
			switch cmd := msg.(type) {
			case placeBidCmd:
				cmd.reply <- placeBidReply{err: shared.ErrAuctionNotActive}
			case tickCmd:
				cmd.reply <- nil
			case transitionCmd:
				cmd.reply <- shared.ErrAuctionAlreadySettled
			case snapshotCmd:
				cmd.reply <- a.state.Snapshot()
			}
		default:
			return
		}
	}
}

// PlaceBid routes a bid through the mailbox and waits for the outcome
func (a *Actor) PlaceBid(ctx context.Context, bidderID uuid.UUID, amount float64, clientToken string) (uuid.UUID, float64, error) {
	cmd := placeBidCmd{
		ctx: ctx,
		req: placeBidRequest{
			BidderID:    bidderID,
			Amount:      amount,
			ClientToken: clientToken,
		},
		reply: make(chan placeBidReply, 1),
	}

	if err := a.enqueue(ctx, cmd); err != nil {
		return uuid.Nil, 0, err
	}

	select {
	case reply := <-cmd.reply:
		return reply.bidID, reply.price, reply.err
	case <-a.done:
		select {
		case reply := <-cmd.reply:
			return reply.bidID, reply.price, reply.err
		default:
			return uuid.Nil, 0, shared.ErrAuctionNotActive
		}
	case <-ctx.Done():
		return uuid.Nil, 0, ctx.Err()
	}
}

// Tick routes a zero-payload clock message through the mailbox, keeping
// time-driven transitions totally ordered with bids
func (a *Actor) Tick(ctx context.Context, now time.Time) error {
	cmd := tickCmd{ctx: ctx, now: now, reply: make(chan error, 1)}
	if err := a.enqueue(ctx, cmd); err != nil {
		return err
	}
	return a.await(ctx, cmd.reply)
}

// Transition routes an operator lifecycle action through the mailbox
func (a *Actor) Transition(ctx context.Context, to auction.Status) error {
	cmd := transitionCmd{ctx: ctx, to: to, reply: make(chan error, 1)}
	if err := a.enqueue(ctx, cmd); err != nil {
		return err
	}
	return a.await(ctx, cmd.reply)
}

// Snapshot returns a consistent copy of the auction state, serialized with
// all in-flight mutations
func (a *Actor) Snapshot(ctx context.Context) (*auction.Snapshot, error) {
	cmd := snapshotCmd{reply: make(chan *auction.Snapshot, 1)}
	if err := a.enqueue(ctx, cmd); err != nil {
		return nil, err
	}

	select {
	case snap := <-cmd.reply:
		return snap, nil
	case <-a.done:
		select {
		case snap := <-cmd.reply:
			return snap, nil
		default:
			// the run loop has exited; nothing mutates the state anymore
			return a.state.Snapshot(), nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) enqueue(ctx context.Context, cmd interface{}) error {
	select {
	case a.mailbox <- cmd:
		return nil
	case <-a.quit:
		return shared.ErrAuctionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-a.done:
		select {
		case err := <-reply:
			return err
		default:
			return shared.ErrAuctionAlreadySettled
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handlePlaceBid runs the bid acceptance algorithm as one critical section.
// The durable write happens before any in-memory state advances, so a
// storage failure aborts the mutation without partially applying it.
func (a *Actor) handlePlaceBid(ctx context.Context, req placeBidRequest) placeBidReply {
	state := a.state

	if state.Status != auction.StatusActive {
		return placeBidReply{err: shared.ErrAuctionNotActive}
	}
	// a winning bid is already durably recorded and only the terminal write
	// is still being retried; the auction is closed to further bids
	if a.pendingConclusion {
		return placeBidReply{err: shared.ErrAuctionNotActive}
	}

	key := ""
	if req.ClientToken != "" {
		key = tokenKey(req.BidderID, req.Amount, req.ClientToken)
		if _, seen := a.seenTokens[key]; seen {
			return placeBidReply{err: shared.ErrDuplicateBid}
		}
	}

	newBid := bid.New(state.ID, req.BidderID, req.Amount, req.ClientToken, a.now())
	snap := state.Snapshot()

	if err := a.strategy.Accepts(snap, newBid); err != nil {
		a.logger.Debug().
			Str("bidder_id", req.BidderID.String()).
			Float64("amount", req.Amount).
			Err(err).
			Msg("Bid rejected")
		return placeBidReply{err: err}
	}

	decision := a.strategy.Apply(snap, newBid)
	newBid.Accept(decision.Winning)

	if err := a.repo.AppendBid(ctx, newBid, decision.NewPrice); err != nil {
		a.logger.Error().Err(err).Str("bid_id", newBid.ID.String()).Msg("Failed to record accepted bid")
		return placeBidReply{err: fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)}
	}

	state.AppendBid(newBid, decision.NewPrice)
	if key != "" {
		a.seenTokens[key] = struct{}{}
	}

	a.logger.Info().
		Str("bid_id", newBid.ID.String()).
		Str("bidder_id", req.BidderID.String()).
		Float64("amount", req.Amount).
		Float64("current_price", state.CurrentPrice).
		Msg("Bid accepted")

	a.publish(ctx, outbound.EventTypeBidPlaced, map[string]interface{}{
		"bid_id":        newBid.ID.String(),
		"bidder_id":     newBid.BidderID.String(),
		"amount":        newBid.Amount,
		"current_price": state.CurrentPrice,
	})

	if decision.Concludes {
		if err := a.conclude(ctx, auction.StatusEnded); err != nil {
			// the bid is durably recorded; conclusion is retried on the
			// next tick
			a.logger.Error().Err(err).Msg("Failed to conclude auction after winning bid")
		}
	}

	return placeBidReply{bidID: newBid.ID, price: state.CurrentPrice}
}

// handleTick advances the auction through time-driven transitions
func (a *Actor) handleTick(ctx context.Context, now time.Time) error {
	state := a.state

	if state.Terminal() {
		return nil
	}

	if a.pendingConclusion {
		return a.conclude(ctx, auction.StatusEnded)
	}

	if state.Status == auction.StatusScheduled && !now.Before(state.StartTime) {
		if err := a.repo.UpdateStatus(ctx, state.ID, auction.StatusActive); err != nil {
			a.logger.Error().Err(err).Msg("Failed to persist activation")
			return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
		}
		if err := state.Transition(auction.StatusActive); err != nil {
			return err
		}
		if state.Kind == auction.KindDutch {
			state.CurrentPrice = a.curve.PriceAt(now)
		}
		a.logger.Info().Time("start_time", state.StartTime).Msg("Auction activated")
	}

	if state.Status == auction.StatusActive || state.Status == auction.StatusPaused {
		if !now.Before(state.EndTime) {
			return a.conclude(ctx, auction.StatusEnded)
		}
	}

	if state.Status == auction.StatusActive && state.Kind == auction.KindDutch {
		a.decayPrice(ctx, now)
	}

	return nil
}

// decayPrice recomputes the Dutch price curve. The decayed price is
// derivable from the curve, so a failed persistence write is logged and
// retried implicitly on the next tick rather than blocking the decay.
func (a *Actor) decayPrice(ctx context.Context, now time.Time) {
	price := a.curve.PriceAt(now)
	if price >= a.state.CurrentPrice {
		return
	}

	if err := a.repo.UpdatePrice(ctx, a.state.ID, price); err != nil {
		a.logger.Warn().Err(err).Float64("price", price).Msg("Failed to persist decayed price")
	}
	a.state.CurrentPrice = price
	a.state.UpdatedAt = a.now()

	a.publish(ctx, outbound.EventTypePriceDropped, map[string]interface{}{
		"current_price": price,
	})
}

// handleTransition applies an operator lifecycle action
func (a *Actor) handleTransition(ctx context.Context, to auction.Status) error {
	state := a.state

	if state.Terminal() {
		return shared.ErrAuctionAlreadySettled
	}
	if !auction.CanTransition(state.Status, to) {
		return shared.ErrInvalidTransition
	}

	if to == auction.StatusCancelled {
		return a.conclude(ctx, auction.StatusCancelled)
	}

	if err := a.repo.UpdateStatus(ctx, state.ID, to); err != nil {
		a.logger.Error().Err(err).Str("to", string(to)).Msg("Failed to persist status transition")
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	if err := state.Transition(to); err != nil {
		return err
	}

	a.logger.Info().Str("status", string(to)).Msg("Auction status changed")
	return nil
}

// conclude performs the terminal transition and hands off to the settlement
// emitter. The settlement record is persisted append-once before the status
// advances, so a crash or retry cannot produce a second settlement.
func (a *Actor) conclude(ctx context.Context, to auction.Status) error {
	state := a.state

	if state.Settlement != nil {
		return shared.ErrAuctionAlreadySettled
	}

	if to == auction.StatusEnded && state.Kind == auction.KindSealed {
		if winner := strategy.SealedWinner(state.Ledger); winner != nil && !winner.Winning {
			if err := a.repo.MarkWinning(ctx, state.ID, winner.ID, winner.Amount); err != nil {
				a.logger.Error().Err(err).Msg("Failed to persist sealed winner")
				a.pendingConclusion = true
				return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
			}
			state.ClearWinning()
			winner.Winning = true
			state.CurrentPrice = winner.Amount
		}
	}

	settlement := a.pendingSettlement
	if settlement == nil || a.pendingTerminal != to {
		settlement = a.emitter.Build(state, to, a.now())
		a.pendingSettlement = settlement
		a.pendingTerminal = to
	}

	if err := a.emitter.Persist(ctx, settlement); err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist settlement")
		a.pendingConclusion = to == auction.StatusEnded
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}
	if err := a.repo.UpdateStatus(ctx, state.ID, to); err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist terminal status")
		a.pendingConclusion = to == auction.StatusEnded
		return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
	}

	state.Status = to
	state.Settlement = settlement
	state.UpdatedAt = a.now()
	a.pendingConclusion = false
	a.pendingSettlement = nil

	a.logger.Info().
		Str("outcome", string(settlement.Outcome)).
		Msg("Auction settled")

	a.emitter.Emit(ctx, settlement)
	return nil
}

func (a *Actor) publish(ctx context.Context, eventType outbound.EventType, data map[string]interface{}) {
	if a.broadcaster == nil {
		return
	}

	event := outbound.Event{
		Type:      eventType,
		AuctionID: a.state.ID,
		Data:      data,
		Timestamp: a.now().Unix(),
	}

	if err := a.broadcaster.Publish(ctx, a.state.ID, event); err != nil {
		a.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to broadcast event")
	}
}

func tokenKey(bidderID uuid.UUID, amount float64, token string) string {
	return bidderID.String() + "|" + strconv.FormatFloat(amount, 'f', -1, 64) + "|" + token
}
