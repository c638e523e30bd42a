package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/avelis/boardsync/internal/model"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrStaleTransport = errors.New("transport stale (no pong)")
	ErrTimeout        = errors.New("operation timeout")
	ErrClosed         = errors.New("gateway closed")
	ErrSessionExpired = errors.New("session expired")
)

// ProbeResult is the outcome of a health probe round-trip.
type ProbeResult struct {
	OK      bool
	Latency time.Duration
}

// SubscriptionHandle identifies an open transport subscription.
type SubscriptionHandle struct {
	SID int64
	Key model.ResourceKey
}

// Transport is the subscription surface of the change-feed gateway.
type Transport interface {
	// OpenSubscription opens a change-feed subscription for a resource key.
	OpenSubscription(ctx context.Context, key model.ResourceKey, filter map[string]string) (*SubscriptionHandle, error)

	// CloseSubscription closes a previously opened subscription.
	CloseSubscription(ctx context.Context, handle *SubscriptionHandle) error
}

// Gateway is the full surface consumed from the change-feed provider.
type Gateway interface {
	Transport

	// Connect establishes the transport connection.
	Connect(ctx context.Context) error

	// Reconnect tears down the current connection and dials a fresh one.
	Reconnect(ctx context.Context) error

	// Close shuts the gateway down permanently.
	Close() error

	// Probe performs a minimal round-trip bounded by the caller's context.
	Probe(ctx context.Context) (ProbeResult, error)

	// RefreshSession renews the authentication session.
	RefreshSession(ctx context.Context) error

	// Events returns the stream of decoded change notifications.
	Events() <-chan model.ChangeEvent

	// IsConnected reports the current connection state.
	IsConnected() bool
}

// command is a request envelope sent to the gateway.
type command struct {
	ID       int64             `json:"id"`
	Op       string            `json:"op"`
	Resource string            `json:"resource,omitempty"`
	Scope    string            `json:"scope,omitempty"`
	Filter   map[string]string `json:"filter,omitempty"`
	SID      int64             `json:"sid,omitempty"`
	Token    string            `json:"token,omitempty"`
}

// response is a command response from the gateway.
type response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "subscribed", "unsubscribed", "pong", "ok", "error"
	Msg  json.RawMessage `json:"msg"`
}

// subscribedMsg is the message content for a "subscribed" response.
type subscribedMsg struct {
	SID int64 `json:"sid"`
}

// errorMsg is the message content for an "error" response.
type errorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// changeWire is a change notification as delivered on the wire.
type changeWire struct {
	Type     string          `json:"type"` // "change"
	SID      int64           `json:"sid"`
	Resource string          `json:"resource"`
	Scope    string          `json:"scope"`
	Change   string          `json:"change"` // "insert", "update", "delete"
	Payload  json.RawMessage `json:"payload"`
}

// Config configures the websocket gateway.
type Config struct {
	URL              string        // Gateway websocket URL
	AuthToken        string        // Bearer token for the session
	HandshakeTimeout time.Duration // Dial handshake ceiling
	WriteTimeout     time.Duration // Write deadline for sends
	CommandTimeout   time.Duration // Ceiling for command round-trips
	PingInterval     time.Duration // Keepalive ping cadence
	PongTimeout      time.Duration // Max silence before the transport is stale
	EventBufferSize  int           // Decoded event channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CommandTimeout:   10 * time.Second,
		PingInterval:     15 * time.Second,
		PongTimeout:      60 * time.Second,
		EventBufferSize:  4096,
	}
}
