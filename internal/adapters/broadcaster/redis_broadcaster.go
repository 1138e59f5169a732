package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"veles-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// settlementChannel is the firehose consumed by the external sale and
// notification subsystems; per-auction channels feed live observers.
const settlementChannel = "auction:settlements"

func auctionChannel(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s", auctionID.String())
}

// RedisBroadcaster fans auction events out over Redis pub/sub. Delivery is
// at-least-once; settlement consumers deduplicate on auction_id.
type RedisBroadcaster struct {
	client        *redis.Client
	subscribers   map[string]chan outbound.Event // clientID -> local channel
	pubsubs       map[string]*redis.PubSub       // clientID -> pubsub instance
	subscriptions map[string]map[string]bool     // clientID -> auctionID -> subscribed
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	logger        zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

// NewBroadcaster creates a Redis-backed event broadcaster
func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:        params.RedisClient,
		subscribers:   make(map[string]chan outbound.Event),
		pubsubs:       make(map[string]*redis.PubSub),
		subscriptions: make(map[string]map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		logger:        params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe subscribes a client to events for a specific auction. All of a
// client's subscriptions share one pubsub connection and one local channel.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, auctionID uuid.UUID, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subscriptions[clientID] != nil && r.subscriptions[clientID][auctionID.String()] {
		return nil
	}

	if r.subscribers[clientID] == nil {
		r.subscribers[clientID] = eventChan
	}
	if r.subscriptions[clientID] == nil {
		r.subscriptions[clientID] = make(map[string]bool)
	}
	r.subscriptions[clientID][auctionID.String()] = true

	pubsub, exists := r.pubsubs[clientID]
	if !exists {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub
		go r.forwardMessages(pubsub, clientID, eventChan)
	}

	if err := pubsub.Subscribe(ctx, auctionChannel(auctionID)); err != nil {
		r.logger.Error().Err(err).
			Str("client_id", clientID).
			Str("auction_id", auctionID.String()).
			Msg("Failed to subscribe to auction channel")
		return err
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client subscribed to auction")
	return nil
}

// Unsubscribe unsubscribes a client from events for a specific auction,
// tearing the pubsub connection down with the last subscription
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, auctionID uuid.UUID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auctions, exists := r.subscriptions[clientID]
	if !exists {
		return nil
	}
	delete(auctions, auctionID.String())

	if len(auctions) > 0 {
		if pubsub, ok := r.pubsubs[clientID]; ok {
			if err := pubsub.Unsubscribe(ctx, auctionChannel(auctionID)); err != nil {
				r.logger.Error().Err(err).
					Str("client_id", clientID).
					Str("auction_id", auctionID.String()).
					Msg("Failed to unsubscribe from auction channel")
			}
		}
		return nil
	}

	delete(r.subscriptions, clientID)
	r.dropClient(clientID)

	r.logger.Info().
		Str("client_id", clientID).
		Str("auction_id", auctionID.String()).
		Msg("Client unsubscribed from auction")
	return nil
}

// Publish publishes an event to all subscribers of an auction. Settlement
// events are additionally fanned out on the settlement firehose.
func (r *RedisBroadcaster) Publish(ctx context.Context, auctionID uuid.UUID, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, auctionChannel(auctionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if event.Type == outbound.EventTypeAuctionSettled {
		if err := r.client.Publish(ctx, settlementChannel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish settlement event: %w", err)
		}
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("auction_id", auctionID.String()).
		Msg("Event published")
	return nil
}

// IsSubscribed checks if a client is subscribed to an auction
func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, auctionID uuid.UUID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions, exists := r.subscriptions[clientID]
	return exists && auctions[auctionID.String()]
}

// Close tears down every subscription and the Redis connection
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID := range r.subscriptions {
		delete(r.subscriptions, clientID)
		r.dropClient(clientID)
	}

	return r.client.Close()
}

// dropClient closes a client's pubsub connection and forgets its local
// channel. The channel itself belongs to the connection handler and is never
// closed here. Callers must hold the write lock.
func (r *RedisBroadcaster) dropClient(clientID string) {
	delete(r.subscribers, clientID)
	if pubsub, ok := r.pubsubs[clientID]; ok {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to close pubsub connection")
		}
		delete(r.pubsubs, clientID)
	}
}

// forwardMessages pumps Redis messages into the client's local channel,
// dropping events the client cannot keep up with
func (r *RedisBroadcaster) forwardMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal event payload")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Client channel full, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}
