package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"veles-auction-engine/internal/domain/auction"
	"veles-auction-engine/internal/domain/shared"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe       MessageType = "subscribe"
	MessageTypeUnsubscribe     MessageType = "unsubscribe"
	MessageTypePlaceBid        MessageType = "place_bid"
	MessageTypeCreateAuction   MessageType = "create_auction"
	MessageTypeScheduleAuction MessageType = "schedule_auction"
	MessageTypePauseAuction    MessageType = "pause_auction"
	MessageTypeResumeAuction   MessageType = "resume_auction"
	MessageTypeCancelAuction   MessageType = "cancel_auction"
	MessageTypeGetAuction      MessageType = "get_auction"
	MessageTypeListAuctions    MessageType = "list_auctions"
	MessageTypePing            MessageType = "ping"

	// Server to Client message types
	MessageTypeBidResult      MessageType = "bid_result"
	MessageTypeBidPlaced      MessageType = "bid_placed"
	MessageTypePriceDropped   MessageType = "price_dropped"
	MessageTypeAuctionSettled MessageType = "auction_settled"
	MessageTypeAuctionUpdate  MessageType = "auction_update"
	MessageTypeAuctionCreated MessageType = "auction_created"
	MessageTypeError          MessageType = "error"
	MessageTypePong           MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

// NewBidResultMessage carries the synchronous accept/reject outcome of a bid
func NewBidResultMessage(auctionID uuid.UUID, accepted bool, currentPrice *float64, reason shared.Reason) *ServerMessage {
	msg := NewServerMessage(MessageTypeBidResult)
	msg.AuctionID = &auctionID
	msg.Data["accepted"] = accepted
	if currentPrice != nil {
		msg.Data["current_price"] = *currentPrice
	}
	if reason != "" {
		msg.Data["reason"] = string(reason)
	}
	return msg
}

// NewAuctionSnapshotMessage converts an auction snapshot into an update
// message. Sealed auctions never reveal their price or ledger amounts while
// bidding is open.
func NewAuctionSnapshotMessage(snap *auction.Snapshot) *ServerMessage {
	msg := NewServerMessage(MessageTypeAuctionUpdate)
	msg.AuctionID = &snap.ID
	msg.Data["vehicle_ref"] = snap.VehicleRef
	msg.Data["kind"] = string(snap.Kind)
	msg.Data["status"] = string(snap.Status)
	msg.Data["start_time"] = snap.StartTime.Format(time.RFC3339)
	msg.Data["end_time"] = snap.EndTime.Format(time.RFC3339)
	msg.Data["bid_count"] = len(snap.Ledger)

	sealedOpen := snap.Kind == auction.KindSealed && !snap.Status.Terminal()
	if !sealedOpen {
		msg.Data["current_price"] = snap.CurrentPrice
	}
	if snap.Settlement != nil {
		msg.Data["outcome"] = string(snap.Settlement.Outcome)
		if snap.Settlement.FinalPrice != nil {
			msg.Data["final_price"] = *snap.Settlement.FinalPrice
		}
	}
	return msg
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe, MessageTypeGetAuction,
		MessageTypeScheduleAuction, MessageTypePauseAuction,
		MessageTypeResumeAuction, MessageTypeCancelAuction:
		return m.validateAuctionID()

	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		amount, ok := m.Data["amount"].(float64)
		if !ok || amount <= 0 {
			return shared.ErrInvalidAmount
		}

	case MessageTypeCreateAuction:
		if m.Data["vehicle_ref"] == nil {
			return shared.ErrVehicleRefRequired
		}
		if m.Data["kind"] == nil {
			return shared.ErrKindRequired
		}
		if m.Data["start_time"] == nil {
			return shared.ErrStartTimeRequired
		}
		if m.Data["end_time"] == nil {
			return shared.ErrEndTimeRequired
		}
		if m.Data["min_bid"] == nil {
			return shared.ErrMinBidRequired
		}

	case MessageTypeListAuctions:

	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
