package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control messages
	maxMessageSize = 4 * 1024

	sendBufferSize = 64
)

// Client represents a WebSocket client connection
type Client struct {
	id            string
	actor         models.Actor
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]Filters // channel -> filters
	mu            sync.RWMutex
	logger        *logger.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
}

// NewClient creates a client subscribed to every event addressed to actor
func NewClient(hub *Hub, conn *websocket.Conn, actor models.Actor, log *logger.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &Client{
		id:            id,
		actor:         actor,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: map[string]Filters{ChannelRequests: {}},
		logger:        log.With(zap.String("client_id", id), logger.UserID(actor.UserID)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the client's read and write goroutines
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
	})
}

// Subscribe replaces the filters for a channel
func (c *Client) Subscribe(channel string, filters Filters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[channel] = filters

	c.logger.Debug("client subscribed to channel", zap.String("channel", channel))
}

// Unsubscribe removes a channel subscription
func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, channel)

	c.logger.Debug("client unsubscribed from channel", zap.String("channel", channel))
}

// Wants reports whether any subscription matches the event. Audience checks
// happen in the hub; a subscription never widens what a user may see.
func (c *Client) Wants(event models.NotificationEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	requestChannel := RequestChannel(event.RequestID.String())
	for channel, filters := range c.subscriptions {
		if channel != ChannelRequests && channel != requestChannel {
			continue
		}
		if len(filters.Events) == 0 || containsEvent(filters.Events, event.Type) {
			return true
		}
	}
	return false
}

// readPump reads control messages until the connection fails
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			// one JSON message per frame so clients can parse each frame directly
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		c.sendError("PARSE_ERROR", "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.reply(MessageTypePong, nil)

	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		var sub SubscriptionData
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			c.sendError("INVALID_SUBSCRIPTION", "Invalid subscription data")
			return
		}
		if !validChannel(sub.Channel) {
			c.sendError("INVALID_CHANNEL", "Channel must be \"requests\" or \"requests:<id>\"")
			return
		}

		if msg.Type == MessageTypeSubscribe {
			c.Subscribe(sub.Channel, sub.Filters)
			c.reply(MessageTypeSubscribed, map[string]string{"channel": sub.Channel})
		} else {
			c.Unsubscribe(sub.Channel)
			c.reply(MessageTypeUnsubscribed, map[string]string{"channel": sub.Channel})
		}

	default:
		c.sendError("UNKNOWN_TYPE", "Unknown message type")
	}
}

func (c *Client) sendError(code, message string) {
	c.reply(MessageTypeError, ErrorData{Code: code, Message: message})
}

func (c *Client) reply(msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := msg.ToJSON()
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("send channel full, dropping reply", zap.String("type", string(msgType)))
	}
}

func validChannel(channel string) bool {
	if channel == ChannelRequests {
		return true
	}
	id, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func containsEvent(events []models.NotificationEventType, t models.NotificationEventType) bool {
	for _, e := range events {
		if e == t {
			return true
		}
	}
	return false
}
