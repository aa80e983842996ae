// Package websocket pushes committed request events to connected users.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis pub/sub channel shared by every API instance
const redisChannel = "ws:procurement:events"

const broadcastQueueSize = 256

// ErrBroadcastFull is returned when the local broadcast queue is saturated
var ErrBroadcastFull = errors.New("websocket broadcast queue full")

// Envelope is an event together with the audience allowed to see it
type Envelope struct {
	Event models.NotificationEvent `json:"event"`
	Users []uuid.UUID              `json:"users"`
	Roles []models.Role            `json:"roles"`
	// Origin is the instance that published the envelope
	Origin string `json:"origin"`
}

// NewEnvelope addresses an event to the request owner, admins, and the role
// the event concerns: the awaited approver level, or finance once approved.
func NewEnvelope(event models.NotificationEvent) *Envelope {
	env := &Envelope{
		Event: event,
		Users: []uuid.UUID{event.OwnerID},
		Roles: []models.Role{models.RoleAdmin},
	}
	switch event.Type {
	case models.EventAwaitingApproval:
		if event.AwaitingRole != "" {
			env.Roles = append(env.Roles, event.AwaitingRole)
		}
	case models.EventApproved:
		env.Roles = append(env.Roles, models.RoleFinance)
	}
	return env
}

// AddressedTo reports whether actor is in the envelope's audience
func (e *Envelope) AddressedTo(actor models.Actor) bool {
	for _, id := range e.Users {
		if id == actor.UserID {
			return true
		}
	}
	for _, role := range e.Roles {
		if role == actor.Role {
			return true
		}
	}
	return false
}

// Hub maintains the set of active clients and fans events out to them
type Hub struct {
	// Registered clients by user ID
	clients map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Envelope

	// Optional; when set, events are shared with other instances
	redisClient *redis.Client
	redisPubSub *redis.PubSub
	instanceID  string

	metrics *metrics.Metrics
	logger  *logger.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client, m *metrics.Metrics, log *logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[uuid.UUID]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Envelope, broadcastQueueSize),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		metrics:     m,
		logger:      log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to Redis when configured and starts the hub loop
func (h *Hub) Start() error {
	if h.redisClient != nil {
		h.redisPubSub = h.redisClient.Subscribe(h.ctx, redisChannel)
		// wait for the subscription so no event published after Start is missed
		if _, err := h.redisPubSub.Receive(h.ctx); err != nil {
			h.redisPubSub.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", redisChannel, err)
		}
		go h.handleRedisPubSub()
	}

	go h.run()

	h.logger.Info("WebSocket hub started", zap.Bool("distributed", h.redisClient != nil))
	return nil
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.cancel()

	if h.redisPubSub != nil {
		h.redisPubSub.Close()
	}

	h.mu.RLock()
	for _, clients := range h.clients {
		for client := range clients {
			client.cancel()
		}
	}
	h.mu.RUnlock()

	h.logger.Info("WebSocket hub stopped")
}

// Register adds a client. It returns false once the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// run handles the hub's main loop
func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.actor.UserID
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]bool)
	}
	h.clients[userID][client] = true

	total := h.getTotalClients()
	h.metrics.SetWebsocketClients(total)
	h.logger.Info("client registered",
		zap.String("client_id", client.id),
		logger.UserID(userID),
		zap.Int("total_clients", total),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.actor.UserID
	clients, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	// send stays open; the write pump exits on the client's context instead
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, userID)
	}

	total := h.getTotalClients()
	h.metrics.SetWebsocketClients(total)
	h.logger.Info("client unregistered",
		zap.String("client_id", client.id),
		logger.UserID(userID),
		zap.Int("total_clients", total),
	)
}

// deliver sends an envelope to every local client in its audience that
// subscribed to it
func (h *Hub) deliver(env *Envelope) {
	msg, err := NewMessage(MessageTypeFor(env.Event.Type), env.Event)
	if err != nil {
		h.logger.Error("failed to build event message", zap.Error(err))
		return
	}
	data, err := msg.ToJSON()
	if err != nil {
		h.logger.Error("failed to marshal event message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, clients := range h.clients {
		for client := range clients {
			if env.AddressedTo(client.actor) && client.Wants(env.Event) {
				h.sendToClient(client, data)
				sent++
			}
		}
	}

	h.logger.Debug("event delivered",
		logger.RequestID(env.Event.RequestID),
		zap.String("type", string(msg.Type)),
		zap.Int("recipients", sent),
	)
}

func (h *Hub) sendToClient(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client send channel full, closing connection",
			zap.String("client_id", client.id),
			logger.UserID(client.actor.UserID),
		)
		go client.Close()
	}
}

// Notify delivers an event to local clients and, when Redis is configured,
// to the clients of every other instance. It never blocks on slow clients.
func (h *Hub) Notify(ctx context.Context, event models.NotificationEvent) error {
	env := NewEnvelope(event)
	env.Origin = h.instanceID

	err := h.enqueue(env)
	if err == nil && h.redisClient != nil {
		err = h.publishToRedis(ctx, env)
	}

	status := "sent"
	if err != nil {
		status = "failed"
	}
	h.metrics.RecordNotification("websocket", status)
	return err
}

func (h *Hub) enqueue(env *Envelope) error {
	select {
	case h.broadcast <- env:
		return nil
	default:
		return ErrBroadcastFull
	}
}

func (h *Hub) publishToRedis(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := h.redisClient.Publish(ctx, redisChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// handleRedisPubSub forwards envelopes published by other instances
func (h *Hub) handleRedisPubSub() {
	ch := h.redisPubSub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Error("failed to unmarshal redis envelope", zap.Error(err))
				continue
			}
			// already delivered locally by Notify
			if env.Origin == h.instanceID {
				continue
			}

			if err := h.enqueue(&env); err != nil {
				h.logger.Warn("dropping redis envelope",
					logger.RequestID(env.Event.RequestID),
					zap.Error(err),
				)
			}
		}
	}
}

// HubStats summarizes the hub's connections
type HubStats struct {
	TotalClients int  `json:"total_clients"`
	TotalUsers   int  `json:"total_users"`
	Distributed  bool `json:"distributed"`
}

// Stats returns hub statistics
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		TotalClients: h.getTotalClients(),
		TotalUsers:   len(h.clients),
		Distributed:  h.redisClient != nil,
	}
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.getTotalClients()
}

// must be called with the lock held
func (h *Hub) getTotalClients() int {
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
