package outbound

import (
	"context"

	"github.com/google/uuid"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeAuctionCreated EventType = "auction.created"
	EventTypeBidPlaced      EventType = "bid.placed"
	EventTypePriceDropped   EventType = "price.dropped"
	EventTypeAuctionSettled EventType = "auction.settled"
	EventTypeError          EventType = "error"
)

// Event is one outbound message toward external collaborators. Delivery is
// at-least-once; consumers deduplicate settlement events on auction_id.
type Event struct {
	Type      EventType              `json:"type"`
	AuctionID uuid.UUID              `json:"auction_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Broadcaster defines the interface for broadcasting events
type Broadcaster interface {
	// Subscribe subscribes a client to events for a specific auction.
	// Events for every auction a client subscribes to are delivered on the
	// same channel. The channel stays owned by the caller; the broadcaster
	// never closes it.
	Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from events for a specific auction
	Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error

	// Publish publishes an event to all subscribers of an auction.
	// Settlement events are additionally fanned out to the settlement
	// firehose consumed by the external sale subsystem.
	Publish(ctx context.Context, auctionID uuid.UUID, event Event) error

	// IsSubscribed checks if a client is subscribed to an auction
	IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool
}
