package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"veles-auction-engine/internal/domain/shared"
	"veles-auction-engine/internal/ports/inbound"
	"veles-auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages WebSocket connections and routes client messages into
// the bid engine. It holds no auction state of its own.
type WsHandler struct {
	clients       map[string]*WsClient
	clientsMu     sync.RWMutex
	eventChannels map[string]chan outbound.Event
	channelsMu    sync.RWMutex
	upgrader      websocket.Upgrader
	engine        inbound.BidEngine
	broadcaster   outbound.Broadcaster
	logger        zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader    websocket.Upgrader
	Engine      inbound.BidEngine
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:       make(map[string]*WsClient),
		eventChannels: make(map[string]chan outbound.Event),
		upgrader:      params.Upgrader,
		engine:        params.Engine,
		broadcaster:   params.Broadcaster,
		logger:        params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	bidderIDStr := r.URL.Query().Get("bidder_id")
	if bidderIDStr == "" {
		http.Error(w, "bidder_id is required", http.StatusBadRequest)
		return
	}

	bidderID, err := uuid.Parse(bidderIDStr)
	if err != nil {
		http.Error(w, "invalid bidder_id format", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		BidderID: bidderID,
		Conn:     conn,
		Handler:  h,
		Logger:   h.logger,
	})

	h.registerClient(client)
	h.createEventChannel(client.id)

	client.Start()
	go h.forwardEvents(client)
	go func() {
		<-client.ctx.Done()
		h.unregisterClient(client)
	}()

	h.logger.Info().
		Str("client_id", client.id).
		Str("bidder_id", client.bidderID.String()).
		Msg("WebSocket client connected")
}

func (h *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if eventChan, exists := h.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	h.eventChannels[clientID] = eventChan
	return eventChan
}

func (h *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.RLock()
	defer h.channelsMu.RUnlock()

	return h.eventChannels[clientID]
}

func (h *WsHandler) removeEventChannel(clientID string) {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if eventChan, exists := h.eventChannels[clientID]; exists {
		close(eventChan)
		delete(h.eventChannels, clientID)
	}
}

func (h *WsHandler) registerClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[client.id] = client
}

func (h *WsHandler) unregisterClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	delete(h.clients, client.id)
	client.Stop()
	h.removeEventChannel(client.id)

	h.logger.Info().
		Str("client_id", client.id).
		Int("total_clients", len(h.clients)).
		Msg("WebSocket client disconnected")
}

// forwardEvents pumps broadcast events for this client onto its socket
func (h *WsHandler) forwardEvents(client *WsClient) {
	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		h.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return
	}

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := client.Send(h.convertEventToMessage(event)); err != nil {
				h.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to forward event to client")
			}
		case <-client.ctx.Done():
			return
		}
	}
}

// HandleClientMessage routes a validated client message
func (h *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return h.handleSubscribe(client, msg)
	case MessageTypeUnsubscribe:
		return h.handleUnsubscribe(client, msg)
	case MessageTypePlaceBid:
		return h.handlePlaceBid(client, msg)
	case MessageTypeCreateAuction:
		return h.handleCreateAuction(client, msg)
	case MessageTypeScheduleAuction:
		return h.handleLifecycle(client, msg, h.engine.ScheduleAuction, "scheduled")
	case MessageTypePauseAuction:
		return h.handleLifecycle(client, msg, h.engine.PauseAuction, "paused")
	case MessageTypeResumeAuction:
		return h.handleLifecycle(client, msg, h.engine.ResumeAuction, "resumed")
	case MessageTypeCancelAuction:
		return h.handleLifecycle(client, msg, h.engine.CancelAuction, "cancelled")
	case MessageTypeGetAuction:
		return h.handleGetAuction(client, msg)
	case MessageTypeListAuctions:
		return h.handleListAuctions(client, msg)
	default:
		return shared.ErrUnknownMessageType
	}
}

func (h *WsHandler) convertEventToMessage(event outbound.Event) *ServerMessage {
	msg := &ServerMessage{
		AuctionID: &event.AuctionID,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case outbound.EventTypeBidPlaced:
		msg.Type = MessageTypeBidPlaced
	case outbound.EventTypePriceDropped:
		msg.Type = MessageTypePriceDropped
	case outbound.EventTypeAuctionSettled:
		msg.Type = MessageTypeAuctionSettled
	case outbound.EventTypeAuctionCreated:
		msg.Type = MessageTypeAuctionCreated
	default:
		msg.Type = MessageTypeAuctionUpdate
	}
	return msg
}

func (h *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		return shared.ErrClientEventChannelNotFound
	}

	ctx := context.Background()
	if err := h.broadcaster.Subscribe(ctx, *msg.AuctionID, client.id, eventChan); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "subscribed"
	return client.Send(response)
}

func (h *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()
	if err := h.broadcaster.Unsubscribe(ctx, *msg.AuctionID, client.id); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "unsubscribed"
	return client.Send(response)
}

// handlePlaceBid submits the bid and always answers with a bid_result
// message carrying the accept/reject outcome
func (h *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}

	clientToken := ""
	if token, ok := msg.Data["client_token"].(string); ok {
		clientToken = token
	}

	result, err := h.engine.PlaceBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID:   *msg.AuctionID,
		BidderID:    client.bidderID,
		Amount:      amount,
		ClientToken: clientToken,
	})
	if err != nil {
		return err
	}

	return client.Send(NewBidResultMessage(*msg.AuctionID, result.Accepted, result.CurrentPrice, result.Reason))
}

func (h *WsHandler) handleCreateAuction(client *WsClient, msg *ClientMessage) error {
	req := inbound.CreateAuctionRequest{
		VehicleRef: stringField(msg.Data, "vehicle_ref"),
		Kind:       stringField(msg.Data, "kind"),
		StartTime:  stringField(msg.Data, "start_time"),
		EndTime:    stringField(msg.Data, "end_time"),
	}
	if minBid, ok := msg.Data["min_bid"].(float64); ok {
		req.MinBid = minBid
	}
	if increment, ok := msg.Data["bid_increment"].(float64); ok {
		req.BidIncrement = increment
	}
	if reserve, ok := msg.Data["reserve_price"].(float64); ok {
		req.ReservePrice = &reserve
	}

	created, err := h.engine.CreateAuction(context.Background(), req)
	if err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionCreated)
	response.AuctionID = &created.ID
	response.Data["kind"] = string(created.Kind)
	response.Data["status"] = string(created.Status)
	response.Data["start_time"] = created.StartTime.Format(time.RFC3339)
	response.Data["end_time"] = created.EndTime.Format(time.RFC3339)
	return client.Send(response)
}

func (h *WsHandler) handleLifecycle(client *WsClient, msg *ClientMessage, op func(context.Context, uuid.UUID) error, confirmed string) error {
	if err := op(context.Background(), *msg.AuctionID); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = confirmed
	return client.Send(response)
}

func (h *WsHandler) handleGetAuction(client *WsClient, msg *ClientMessage) error {
	snap, err := h.engine.GetAuction(context.Background(), *msg.AuctionID)
	if err != nil {
		return err
	}

	return client.Send(NewAuctionSnapshotMessage(snap))
}

func (h *WsHandler) handleListAuctions(client *WsClient, msg *ClientMessage) error {
	req := inbound.ListAuctionsRequest{Page: 1, PageSize: 10}
	if page, ok := msg.Data["page"].(float64); ok {
		req.Page = int(page)
	}
	if pageSize, ok := msg.Data["page_size"].(float64); ok {
		req.PageSize = int(pageSize)
	}

	auctions, err := h.engine.ListAuctions(context.Background(), req)
	if err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	items := make([]map[string]interface{}, 0, len(auctions))
	for _, a := range auctions {
		items = append(items, map[string]interface{}{
			"auction_id":  a.ID.String(),
			"vehicle_ref": a.VehicleRef,
			"kind":        string(a.Kind),
			"status":      string(a.Status),
			"end_time":    a.EndTime.Format(time.RFC3339),
		})
	}
	response.Data["auctions"] = items
	return client.Send(response)
}

func stringField(data map[string]interface{}, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}
