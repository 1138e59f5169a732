package ws_test

import (
	"testing"
	"time"

	"veles-auction-engine/internal/adapters/ws"
	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/bid"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	msg, err := ws.ParseClientMessage([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, ws.MessageTypePing, msg.Type)

	_, err = ws.ParseClientMessage([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, shared.ErrMessageTypeRequired)

	_, err = ws.ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestClientMessageValidate(t *testing.T) {
	auctionID := uuid.New()

	cases := []struct {
		name    string
		msg     ws.ClientMessage
		wantErr error
	}{
		{
			name:    "subscribe without auction id",
			msg:     ws.ClientMessage{Type: ws.MessageTypeSubscribe},
			wantErr: shared.ErrAuctionIDRequired,
		},
		{
			name: "place bid without amount",
			msg: ws.ClientMessage{
				Type:      ws.MessageTypePlaceBid,
				AuctionID: &auctionID,
				Data:      map[string]interface{}{},
			},
			wantErr: shared.ErrInvalidAmount,
		},
		{
			name: "place bid with negative amount",
			msg: ws.ClientMessage{
				Type:      ws.MessageTypePlaceBid,
				AuctionID: &auctionID,
				Data:      map[string]interface{}{"amount": float64(-5)},
			},
			wantErr: shared.ErrInvalidAmount,
		},
		{
			name: "valid place bid",
			msg: ws.ClientMessage{
				Type:      ws.MessageTypePlaceBid,
				AuctionID: &auctionID,
				Data:      map[string]interface{}{"amount": float64(100000)},
			},
		},
		{
			name: "create auction missing window",
			msg: ws.ClientMessage{
				Type: ws.MessageTypeCreateAuction,
				Data: map[string]interface{}{
					"vehicle_ref": "veh-1999",
					"kind":        "english",
				},
			},
			wantErr: shared.ErrStartTimeRequired,
		},
		{
			name: "valid create auction",
			msg: ws.ClientMessage{
				Type: ws.MessageTypeCreateAuction,
				Data: map[string]interface{}{
					"vehicle_ref": "veh-1999",
					"kind":        "english",
					"start_time":  "2026-03-01T12:00:00Z",
					"end_time":    "2026-03-01T13:00:00Z",
					"min_bid":     float64(100000),
				},
			},
		},
		{
			name:    "unknown type",
			msg:     ws.ClientMessage{Type: ws.MessageType("teleport")},
			wantErr: shared.ErrUnknownMessageType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBidResultMessage(t *testing.T) {
	auctionID := uuid.New()
	price := float64(110000)

	msg := ws.NewBidResultMessage(auctionID, true, &price, "")
	assert.Equal(t, ws.MessageTypeBidResult, msg.Type)
	assert.Equal(t, true, msg.Data["accepted"])
	assert.Equal(t, price, msg.Data["current_price"])
	_, hasReason := msg.Data["reason"]
	assert.False(t, hasReason)

	msg = ws.NewBidResultMessage(auctionID, false, nil, shared.ReasonBidTooLow)
	assert.Equal(t, false, msg.Data["accepted"])
	assert.Equal(t, "bid_too_low", msg.Data["reason"])
	_, hasPrice := msg.Data["current_price"]
	assert.False(t, hasPrice)
}

func TestSnapshotMessageHidesSealedPrice(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := bid.Bid{ID: uuid.New(), Amount: 150000, Accepted: true}
	snap := &auction.Snapshot{
		ID:           uuid.New(),
		VehicleRef:   "veh-1999",
		Kind:         auction.KindSealed,
		Status:       auction.StatusActive,
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		CurrentPrice: 150000,
		Ledger:       []bid.Bid{entry},
	}

	msg := ws.NewAuctionSnapshotMessage(snap)
	_, hasPrice := msg.Data["current_price"]
	assert.False(t, hasPrice, "sealed price must stay hidden while bidding is open")
	assert.Equal(t, 1, msg.Data["bid_count"])

	// once settled, the price is revealed
	final := float64(150000)
	snap.Status = auction.StatusEnded
	snap.Settlement = &auction.Settlement{Outcome: auction.OutcomeSold, FinalPrice: &final}

	msg = ws.NewAuctionSnapshotMessage(snap)
	assert.Equal(t, float64(150000), msg.Data["current_price"])
	assert.Equal(t, "sold", msg.Data["outcome"])
	assert.Equal(t, final, msg.Data["final_price"])
}
