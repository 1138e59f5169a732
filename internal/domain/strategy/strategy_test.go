package strategy_test

import (
	"testing"
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"
	"veles-auction-engine/internal/domain/strategy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var windowStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshotFor(kind auction.Kind) *auction.Snapshot {
	snap := &auction.Snapshot{
		ID:           uuid.New(),
		Kind:         kind,
		Status:       auction.StatusActive,
		StartTime:    windowStart,
		EndTime:      windowStart.Add(time.Hour),
		MinBid:       100000,
		BidIncrement: 10000,
	}
	if kind == auction.KindDutch || kind == auction.KindReverse {
		snap.CurrentPrice = snap.MinBid
	}
	return snap
}

func bidAt(amount float64, at time.Time) *bid.Bid {
	return bid.New(uuid.New(), uuid.New(), amount, "", at)
}

func withLedger(snap *auction.Snapshot, price float64) *auction.Snapshot {
	entry := bid.New(snap.ID, uuid.New(), price, "", windowStart.Add(time.Minute))
	entry.Accept(true)
	snap.Ledger = append(snap.Ledger, *entry)
	snap.CurrentPrice = price
	return snap
}

func TestForKind(t *testing.T) {
	for _, kind := range []auction.Kind{auction.KindEnglish, auction.KindDutch, auction.KindSealed, auction.KindReverse} {
		s, err := strategy.ForKind(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, s.Kind())
	}

	_, err := strategy.ForKind(auction.Kind("vickrey"))
	assert.ErrorIs(t, err, shared.ErrUnknownKind)
}

func TestCommonGate(t *testing.T) {
	s, err := strategy.ForKind(auction.KindEnglish)
	require.NoError(t, err)
	inWindow := windowStart.Add(10 * time.Minute)

	snap := snapshotFor(auction.KindEnglish)
	snap.Status = auction.StatusPaused
	assert.ErrorIs(t, s.Accepts(snap, bidAt(100000, inWindow)), shared.ErrAuctionNotActive)

	snap = snapshotFor(auction.KindEnglish)
	assert.ErrorIs(t, s.Accepts(snap, bidAt(100000, windowStart.Add(-time.Second))), shared.ErrAuctionNotActive)
	assert.ErrorIs(t, s.Accepts(snap, bidAt(100000, snap.EndTime)), shared.ErrAuctionNotActive)
	assert.NoError(t, s.Accepts(snap, bidAt(100000, inWindow)))
}

func TestEnglishAscending(t *testing.T) {
	s, err := strategy.ForKind(auction.KindEnglish)
	require.NoError(t, err)
	inWindow := windowStart.Add(10 * time.Minute)

	cases := []struct {
		name    string
		snap    *auction.Snapshot
		amount  float64
		wantErr error
	}{
		{"first bid below minimum", snapshotFor(auction.KindEnglish), 99999, shared.ErrBidTooLow},
		{"first bid at minimum", snapshotFor(auction.KindEnglish), 100000, nil},
		{"raise below increment", withLedger(snapshotFor(auction.KindEnglish), 100000), 105000, shared.ErrBidTooLow},
		{"raise at increment", withLedger(snapshotFor(auction.KindEnglish), 100000), 110000, nil},
		{"raise above increment", withLedger(snapshotFor(auction.KindEnglish), 100000), 137500, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := bidAt(tc.amount, inWindow)
			err := s.Accepts(tc.snap, b)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			d := s.Apply(tc.snap, b)
			assert.Equal(t, tc.amount, d.NewPrice)
			assert.True(t, d.Winning)
			assert.False(t, d.Concludes)
		})
	}
}

func TestDutchFirstAcceptableBidWins(t *testing.T) {
	s, err := strategy.ForKind(auction.KindDutch)
	require.NoError(t, err)
	inWindow := windowStart.Add(10 * time.Minute)

	snap := snapshotFor(auction.KindDutch)
	snap.CurrentPrice = 420000

	assert.ErrorIs(t, s.Accepts(snap, bidAt(419999, inWindow)), shared.ErrBidTooHigh)
	require.NoError(t, s.Accepts(snap, bidAt(420000, inWindow)))

	d := s.Apply(snap, bidAt(430000, inWindow))
	assert.Equal(t, float64(430000), d.NewPrice)
	assert.True(t, d.Concludes)
	assert.True(t, d.Winning)
}

func TestDutchCurve(t *testing.T) {
	reserve := float64(300000)
	a := &auction.Auction{
		Kind:         auction.KindDutch,
		StartTime:    windowStart,
		EndTime:      windowStart.Add(time.Hour),
		MinBid:       500000,
		ReservePrice: &reserve,
	}
	curve := strategy.CurveFor(a)

	assert.Equal(t, float64(500000), curve.PriceAt(windowStart.Add(-time.Minute)))
	assert.Equal(t, float64(500000), curve.PriceAt(windowStart))
	assert.InDelta(t, 400000, curve.PriceAt(windowStart.Add(30*time.Minute)), 0.01)
	assert.InDelta(t, 420000, curve.PriceAt(windowStart.Add(24*time.Minute)), 0.01)
	assert.Equal(t, float64(300000), curve.PriceAt(windowStart.Add(time.Hour)))
	assert.Equal(t, float64(300000), curve.PriceAt(windowStart.Add(2*time.Hour)))

	// without a reserve the curve decays all the way to zero
	a.ReservePrice = nil
	curve = strategy.CurveFor(a)
	assert.Equal(t, float64(0), curve.PriceAt(windowStart.Add(time.Hour)))

	// the curve never rises
	prev := curve.PriceAt(windowStart)
	for m := 1; m <= 60; m++ {
		p := curve.PriceAt(windowStart.Add(time.Duration(m) * time.Minute))
		assert.LessOrEqual(t, p, prev)
		prev = p
	}
}

func TestSealedStoresWithoutRevealing(t *testing.T) {
	s, err := strategy.ForKind(auction.KindSealed)
	require.NoError(t, err)
	inWindow := windowStart.Add(10 * time.Minute)

	snap := snapshotFor(auction.KindSealed)
	assert.ErrorIs(t, s.Accepts(snap, bidAt(99999, inWindow)), shared.ErrBidTooLow)
	require.NoError(t, s.Accepts(snap, bidAt(100000, inWindow)))

	d := s.Apply(snap, bidAt(150000, inWindow))
	assert.Equal(t, snap.CurrentPrice, d.NewPrice)
	assert.False(t, d.Winning)
	assert.False(t, d.Concludes)
}

func TestSealedWinner(t *testing.T) {
	assert.Nil(t, strategy.SealedWinner(nil))

	mk := func(amount float64, at time.Time) *bid.Bid {
		b := bid.New(uuid.New(), uuid.New(), amount, "", at)
		b.Accept(false)
		return b
	}

	low := mk(120000, windowStart.Add(time.Minute))
	late := mk(150000, windowStart.Add(20*time.Minute))
	early := mk(150000, windowStart.Add(5*time.Minute))

	winner := strategy.SealedWinner([]*bid.Bid{low, late, early})
	require.NotNil(t, winner)
	assert.Equal(t, early.ID, winner.ID)
}

func TestReverseDescending(t *testing.T) {
	s, err := strategy.ForKind(auction.KindReverse)
	require.NoError(t, err)
	inWindow := windowStart.Add(10 * time.Minute)

	snap := snapshotFor(auction.KindReverse)
	assert.ErrorIs(t, s.Accepts(snap, bidAt(100001, inWindow)), shared.ErrBidTooHigh)
	require.NoError(t, s.Accepts(snap, bidAt(100000, inWindow)))

	snap = withLedger(snapshotFor(auction.KindReverse), 100000)
	assert.ErrorIs(t, s.Accepts(snap, bidAt(95000, inWindow)), shared.ErrBidTooHigh)
	require.NoError(t, s.Accepts(snap, bidAt(90000, inWindow)))

	d := s.Apply(snap, bidAt(90000, inWindow))
	assert.Equal(t, float64(90000), d.NewPrice)
	assert.True(t, d.Winning)
	assert.False(t, d.Concludes)
}
