package websocket

import (
	"encoding/json"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Request event types
	MessageTypeRequestAwaitingApproval MessageType = "request.awaiting_approval"
	MessageTypeRequestApproved         MessageType = "request.approved"
	MessageTypeRequestRejected         MessageType = "request.rejected"
	MessageTypeRequestCancelled        MessageType = "request.cancelled"

	// Connection management
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
)

// Channels a client can subscribe to. ChannelRequests carries every event
// addressed to the user; "requests:<id>" narrows it to one request.
const (
	ChannelRequests = "requests"
	channelPrefix   = ChannelRequests + ":"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorData contains error details
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubscriptionData contains subscription request details
type SubscriptionData struct {
	Channel string  `json:"channel"`
	Filters Filters `json:"filters,omitempty"`
}

// Filters narrow a subscription by event type
type Filters struct {
	Events []models.NotificationEventType `json:"events,omitempty"`
}

// RequestChannel is the channel for a single request
func RequestChannel(id string) string {
	return channelPrefix + id
}

// MessageTypeFor maps a workflow event to its message type
func MessageTypeFor(t models.NotificationEventType) MessageType {
	return MessageType("request." + string(t))
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		rawData = jsonData
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      rawData,
	}, nil
}

// ToJSON converts a message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
