package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDeidentification reports one completed de-identification call
	EventTypeDeidentification EventType = "deidentification"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// DeidentificationEvent carries per-type counts only, never entity text.
type DeidentificationEvent struct {
	Operation    string         `json:"operation"`
	Scope        string         `json:"scope"`
	EntityCounts map[string]int `json:"entity_counts"`
	DurationMS   float64        `json:"duration"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// SubscriptionRequest narrows the events a client receives.
type SubscriptionRequest struct {
	Events     []EventType `json:"events"`
	Operations []string    `json:"operations,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	IP           string
	UserAgent    string
}
