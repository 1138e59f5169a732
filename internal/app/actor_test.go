package app_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"veles-auction-engine/internal/app"
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/shared"
	"veles-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock lets a test move the actor's notion of now
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testAuction(kind auction.Kind, status auction.Status) *auction.Auction {
	a := &auction.Auction{
		ID:           uuid.New(),
		VehicleRef:   "veh-1999",
		Kind:         kind,
		Status:       status,
		StartTime:    baseTime,
		EndTime:      baseTime.Add(time.Hour),
		MinBid:       100000,
		BidIncrement: 10000,
		CreatedAt:    baseTime.Add(-time.Hour),
		UpdatedAt:    baseTime.Add(-time.Hour),
	}
	if kind == auction.KindDutch || kind == auction.KindReverse {
		a.CurrentPrice = a.MinBid
	}
	return a
}

type actorFixture struct {
	actor       *app.Actor
	repo        *memAuctionRepo
	settlements *memSettlementRepo
	broadcaster *memBroadcaster
	clock       *fakeClock
}

func startActor(t *testing.T, a *auction.Auction) *actorFixture {
	t.Helper()

	repo := newMemAuctionRepo()
	require.NoError(t, repo.Create(context.Background(), a))
	settlements := newMemSettlementRepo()
	broadcaster := newMemBroadcaster()
	clock := newFakeClock(baseTime.Add(10 * time.Minute))

	emitter := app.NewSettlementEmitter(app.SettlementEmitterParams{
		SettlementRepo: settlements,
		Broadcaster:    broadcaster,
		Logger:         zerolog.Nop(),
	})

	act, err := app.NewActor(app.ActorParams{
		Auction:     a,
		Repo:        repo,
		Emitter:     emitter,
		Broadcaster: broadcaster,
		Logger:      zerolog.Nop(),
		Now:         clock.Now,
	})
	require.NoError(t, err)

	act.Start()
	t.Cleanup(act.Stop)

	return &actorFixture{
		actor:       act,
		repo:        repo,
		settlements: settlements,
		broadcaster: broadcaster,
		clock:       clock,
	}
}

func TestActorAscendingBids(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()
	bidder := uuid.New()

	// opening bid below the minimum is rejected
	_, _, err := fx.actor.PlaceBid(ctx, bidder, 90000, "")
	assert.ErrorIs(t, err, shared.ErrBidTooLow)

	_, price, err := fx.actor.PlaceBid(ctx, bidder, 100000, "")
	require.NoError(t, err)
	assert.Equal(t, float64(100000), price)

	// the next bid must clear current price plus increment
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 105000, "")
	assert.ErrorIs(t, err, shared.ErrBidTooLow)

	_, price, err = fx.actor.PlaceBid(ctx, uuid.New(), 110000, "")
	require.NoError(t, err)
	assert.Equal(t, float64(110000), price)

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Ledger, 2)
	assert.True(t, snap.Ledger[1].Winning)
	assert.False(t, snap.Ledger[0].Winning)

	assert.Len(t, fx.broadcaster.published(outbound.EventTypeBidPlaced), 2)
}

func TestActorDuplicateClientToken(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()
	bidder := uuid.New()

	_, _, err := fx.actor.PlaceBid(ctx, bidder, 100000, "tok-1")
	require.NoError(t, err)

	_, _, err = fx.actor.PlaceBid(ctx, bidder, 100000, "tok-1")
	assert.ErrorIs(t, err, shared.ErrDuplicateBid)

	// a different token from the same bidder is a fresh submission
	_, _, err = fx.actor.PlaceBid(ctx, bidder, 110000, "tok-2")
	require.NoError(t, err)

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Ledger, 2)
	assert.Len(t, fx.repo.storedBids(), 2)
}

func TestActorConcurrentBidsKeepLedgerMonotonic(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()

	var wg sync.WaitGroup
	accepted := make(chan float64, 32)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := 100000 + float64(i)*10000
			if _, _, err := fx.actor.PlaceBid(ctx, uuid.New(), amount, fmt.Sprintf("tok-%d", i)); err == nil {
				accepted <- amount
			}
		}(i)
	}
	wg.Wait()
	close(accepted)

	var amounts []float64
	for amount := range accepted {
		amounts = append(amounts, amount)
	}
	require.NotEmpty(t, amounts)
	sort.Float64s(amounts)

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)

	// final price is the highest accepted amount and the ledger records
	// amounts in strictly increasing order
	assert.Equal(t, amounts[len(amounts)-1], snap.CurrentPrice)
	require.Len(t, snap.Ledger, len(amounts))
	for i := 1; i < len(snap.Ledger); i++ {
		assert.Greater(t, snap.Ledger[i].Amount, snap.Ledger[i-1].Amount)
	}
}

func TestActorStorageFailureAbortsBid(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()
	bidder := uuid.New()

	fx.repo.mu.Lock()
	fx.repo.failAppend = true
	fx.repo.mu.Unlock()

	_, _, err := fx.actor.PlaceBid(ctx, bidder, 100000, "tok-1")
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Ledger)
	assert.Equal(t, float64(0), snap.CurrentPrice)

	// the aborted submission did not consume its idempotency token, so the
	// retry with the same token succeeds
	fx.repo.mu.Lock()
	fx.repo.failAppend = false
	fx.repo.mu.Unlock()

	_, price, err := fx.actor.PlaceBid(ctx, bidder, 100000, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, float64(100000), price)
}

func TestActorTickActivatesAndEnds(t *testing.T) {
	a := testAuction(auction.KindEnglish, auction.StatusScheduled)
	fx := startActor(t, a)
	ctx := context.Background()

	// before the window opens nothing happens
	require.NoError(t, fx.actor.Tick(ctx, baseTime.Add(-time.Minute)))
	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusScheduled, snap.Status)

	require.NoError(t, fx.actor.Tick(ctx, baseTime))
	snap, err = fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, snap.Status)

	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)

	fx.clock.Set(a.EndTime)
	require.NoError(t, fx.actor.Tick(ctx, a.EndTime))
	snap, err = fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, snap.Status)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)

	// ended auctions reject further bids
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 200000, "")
	assert.ErrorIs(t, err, shared.ErrAuctionNotActive)
}

func TestActorEndsWithNoBids(t *testing.T) {
	a := testAuction(auction.KindEnglish, auction.StatusActive)
	fx := startActor(t, a)
	ctx := context.Background()

	fx.clock.Set(a.EndTime.Add(time.Second))
	require.NoError(t, fx.actor.Tick(ctx, a.EndTime.Add(time.Second)))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeNoBids, snap.Settlement.Outcome)
	assert.Nil(t, snap.Settlement.WinningBid)
}

func TestActorReserveNotMet(t *testing.T) {
	a := testAuction(auction.KindEnglish, auction.StatusActive)
	reserve := float64(150000)
	a.ReservePrice = &reserve
	fx := startActor(t, a)
	ctx := context.Background()

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 120000, "")
	require.NoError(t, err)

	fx.clock.Set(a.EndTime)
	require.NoError(t, fx.actor.Tick(ctx, a.EndTime))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeReserveNotMet, snap.Settlement.Outcome)
	assert.Nil(t, snap.Settlement.FinalPrice)
}

func TestActorDutchBidConcludes(t *testing.T) {
	a := testAuction(auction.KindDutch, auction.StatusActive)
	a.MinBid = 500000
	a.CurrentPrice = 500000
	floor := float64(300000)
	a.ReservePrice = &floor
	fx := startActor(t, a)
	ctx := context.Background()

	// 24 minutes into a one hour window the linear curve sits at 420000
	at := baseTime.Add(24 * time.Minute)
	fx.clock.Set(at)
	require.NoError(t, fx.actor.Tick(ctx, at))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 420000, snap.CurrentPrice, 0.01)
	assert.NotEmpty(t, fx.broadcaster.published(outbound.EventTypePriceDropped))

	// a bid below the decayed price is premature
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 400000, "")
	assert.ErrorIs(t, err, shared.ErrBidTooHigh)

	// the first bid at the decayed price wins and ends the auction
	_, price, err := fx.actor.PlaceBid(ctx, uuid.New(), 420000, "")
	require.NoError(t, err)
	assert.InDelta(t, 420000, price, 0.01)

	snap, err = fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, snap.Status)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)
	require.NotNil(t, snap.Settlement.FinalPrice)
	assert.InDelta(t, 420000, *snap.Settlement.FinalPrice, 0.01)
}

func TestActorSealedWinnerSelectedAtEnd(t *testing.T) {
	a := testAuction(auction.KindSealed, auction.StatusActive)
	fx := startActor(t, a)
	ctx := context.Background()

	early := uuid.New()
	_, _, err := fx.actor.PlaceBid(ctx, early, 150000, "")
	require.NoError(t, err)

	// the visible price never moves while sealed bidding is open
	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(0), snap.CurrentPrice)

	fx.clock.Set(baseTime.Add(20 * time.Minute))
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 150000, "")
	require.NoError(t, err)
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 120000, "")
	require.NoError(t, err)

	fx.clock.Set(a.EndTime)
	require.NoError(t, fx.actor.Tick(ctx, a.EndTime))

	snap, err = fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)
	require.NotNil(t, snap.Settlement.WinningBid)

	// ties on amount go to the earlier submission
	assert.Equal(t, early, snap.Settlement.WinningBid.BidderID)
	assert.Equal(t, float64(150000), snap.CurrentPrice)
}

func TestActorReverseUndercutting(t *testing.T) {
	a := testAuction(auction.KindReverse, auction.StatusActive)
	fx := startActor(t, a)
	ctx := context.Background()

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 110000, "")
	assert.ErrorIs(t, err, shared.ErrBidTooHigh)

	_, price, err := fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)
	assert.Equal(t, float64(100000), price)

	// later bids must undercut by at least the increment
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 95000, "")
	assert.ErrorIs(t, err, shared.ErrBidTooHigh)

	lowest := uuid.New()
	_, price, err = fx.actor.PlaceBid(ctx, lowest, 90000, "")
	require.NoError(t, err)
	assert.Equal(t, float64(90000), price)

	fx.clock.Set(a.EndTime)
	require.NoError(t, fx.actor.Tick(ctx, a.EndTime))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)
	assert.Equal(t, lowest, snap.Settlement.WinningBid.BidderID)
}

func TestActorCancellation(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)

	require.NoError(t, fx.actor.Transition(ctx, auction.StatusCancelled))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusCancelled, snap.Status)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeCancelled, snap.Settlement.Outcome)
	assert.Nil(t, snap.Settlement.WinningBid)

	// a settled auction cannot be transitioned again
	err = fx.actor.Transition(ctx, auction.StatusCancelled)
	assert.ErrorIs(t, err, shared.ErrAuctionAlreadySettled)

	assert.Len(t, fx.broadcaster.published(outbound.EventTypeAuctionSettled), 1)
}

func TestActorPauseBlocksBids(t *testing.T) {
	fx := startActor(t, testAuction(auction.KindEnglish, auction.StatusActive))
	ctx := context.Background()

	require.NoError(t, fx.actor.Transition(ctx, auction.StatusPaused))

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	assert.ErrorIs(t, err, shared.ErrAuctionNotActive)

	require.NoError(t, fx.actor.Transition(ctx, auction.StatusActive))
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)
}

func TestActorPendingConclusionBlocksBids(t *testing.T) {
	a := testAuction(auction.KindDutch, auction.StatusActive)
	a.MinBid = 500000
	a.CurrentPrice = 500000
	floor := float64(300000)
	a.ReservePrice = &floor
	fx := startActor(t, a)
	ctx := context.Background()

	at := baseTime.Add(24 * time.Minute)
	fx.clock.Set(at)
	require.NoError(t, fx.actor.Tick(ctx, at))

	fx.settlements.mu.Lock()
	fx.settlements.failCreate = true
	fx.settlements.mu.Unlock()

	// the winning bid is durably recorded even though the settlement write
	// behind the conclusion fails
	winner := uuid.New()
	_, price, err := fx.actor.PlaceBid(ctx, winner, 420000, "")
	require.NoError(t, err)
	assert.InDelta(t, 420000, price, 0.01)

	fx.settlements.mu.Lock()
	fx.settlements.failCreate = false
	fx.settlements.mu.Unlock()

	// with the conclusion still pending, the auction is closed to bids even
	// before a tick observes the terminal state
	_, _, err = fx.actor.PlaceBid(ctx, uuid.New(), 430000, "")
	assert.ErrorIs(t, err, shared.ErrAuctionNotActive)

	require.NoError(t, fx.actor.Tick(ctx, at.Add(time.Second)))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, snap.Status)
	require.Len(t, snap.Ledger, 1)
	assert.Equal(t, winner, snap.Ledger[0].BidderID)
	assert.True(t, snap.Ledger[0].Winning)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)
	require.NotNil(t, snap.Settlement.FinalPrice)
	assert.InDelta(t, 420000, *snap.Settlement.FinalPrice, 0.01)
	assert.Len(t, fx.repo.storedBids(), 1)
}

func TestActorRetriedConclusionKeepsSettlementRecord(t *testing.T) {
	a := testAuction(auction.KindEnglish, auction.StatusActive)
	fx := startActor(t, a)
	ctx := context.Background()

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)

	// the settlement record persists but the terminal status write fails
	fx.repo.mu.Lock()
	fx.repo.failStatus = true
	fx.repo.mu.Unlock()

	fx.clock.Set(a.EndTime)
	err = fx.actor.Tick(ctx, a.EndTime)
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)

	stored, err := fx.settlements.GetByAuctionID(ctx, a.ID)
	require.NoError(t, err)

	fx.repo.mu.Lock()
	fx.repo.failStatus = false
	fx.repo.mu.Unlock()

	// the retry happens later on the wall clock; the settlement must carry
	// the original timestamp, not one from the retry
	retryAt := a.EndTime.Add(5 * time.Second)
	fx.clock.Set(retryAt)
	require.NoError(t, fx.actor.Tick(ctx, retryAt))

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, stored.SettledAt, snap.Settlement.SettledAt)

	events := fx.broadcaster.published(outbound.EventTypeAuctionSettled)
	require.Len(t, events, 1)
	assert.Equal(t, stored.SettledAt.Unix(), events[0].Timestamp)
}

func TestActorConclusionRetriedOnTick(t *testing.T) {
	a := testAuction(auction.KindEnglish, auction.StatusActive)
	fx := startActor(t, a)
	ctx := context.Background()

	_, _, err := fx.actor.PlaceBid(ctx, uuid.New(), 100000, "")
	require.NoError(t, err)

	fx.settlements.mu.Lock()
	fx.settlements.failCreate = true
	fx.settlements.mu.Unlock()

	fx.clock.Set(a.EndTime)
	err = fx.actor.Tick(ctx, a.EndTime)
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)

	snap, err := fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusActive, snap.Status)
	assert.Nil(t, snap.Settlement)

	// once the store recovers, the next tick completes the conclusion
	fx.settlements.mu.Lock()
	fx.settlements.failCreate = false
	fx.settlements.mu.Unlock()

	require.NoError(t, fx.actor.Tick(ctx, a.EndTime.Add(time.Second)))
	snap, err = fx.actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, snap.Status)
	require.NotNil(t, snap.Settlement)
	assert.Equal(t, auction.OutcomeSold, snap.Settlement.Outcome)
}
