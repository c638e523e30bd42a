package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelis/boardsync/internal/model"
)

// WS is the websocket-backed Gateway implementation.
type WS struct {
	cfg    Config
	logger *slog.Logger

	// Decoded change notifications, survives reconnects
	events chan model.ChangeEvent

	// Connection state
	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	closed     bool
	lastPongAt time.Time
	done       chan struct{} // per-connection generation

	// Write serialization
	writeMu sync.Mutex

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan response
	cmdID     atomic.Int64
}

// NewWS creates a websocket gateway client.
func NewWS(cfg Config, logger *slog.Logger) *WS {
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan model.ChangeEvent, cfg.EventBufferSize),
		pending: make(map[int64]chan response),
	}
}

// Connect establishes the websocket connection.
func (g *WS) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.connected {
		return nil
	}
	return g.dialLocked(ctx)
}

// Reconnect tears down the current connection and dials a fresh one.
func (g *WS) Reconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	g.teardownLocked()
	return g.dialLocked(ctx)
}

// dialLocked dials the gateway and starts the connection goroutines.
// Caller must hold g.mu.
func (g *WS) dialLocked(ctx context.Context) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if g.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+g.cfg.AuthToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: g.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	g.conn = conn
	g.connected = true
	g.lastPongAt = time.Now()
	g.done = make(chan struct{})

	conn.SetPingHandler(func(data string) error {
		g.mu.Lock()
		g.lastPongAt = time.Now()
		g.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		g.mu.Lock()
		g.lastPongAt = time.Now()
		g.mu.Unlock()
		return nil
	})

	go g.readLoop(conn, g.done)
	go g.heartbeatLoop(conn, g.done)

	g.logger.Debug("gateway connected", "url", g.cfg.URL)
	return nil
}

// teardownLocked closes the current connection generation and fails any
// in-flight commands. Caller must hold g.mu.
func (g *WS) teardownLocked() {
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	g.connected = false
	g.failPending(ErrNotConnected)
}

// Close shuts the gateway down permanently. The events channel is left
// open: the read loop may still be delivering a message decoded before the
// teardown, and consumers stop through their own context anyway.
func (g *WS) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	if g.conn != nil {
		g.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	}
	g.teardownLocked()
	return nil
}

// IsConnected reports the current connection state.
func (g *WS) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Events returns the stream of decoded change notifications.
func (g *WS) Events() <-chan model.ChangeEvent {
	return g.events
}

// OpenSubscription opens a change-feed subscription for a resource key.
func (g *WS) OpenSubscription(ctx context.Context, key model.ResourceKey, filter map[string]string) (*SubscriptionHandle, error) {
	resp, err := g.roundTrip(ctx, command{
		Op:       "subscribe",
		Resource: key.Resource,
		Scope:    key.Scope,
		Filter:   filter,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	var sub subscribedMsg
	if err := json.Unmarshal(resp.Msg, &sub); err != nil {
		return nil, fmt.Errorf("decode subscribed response: %w", err)
	}

	g.logger.Debug("subscription opened", "key", key.String(), "sid", sub.SID)
	return &SubscriptionHandle{SID: sub.SID, Key: key}, nil
}

// CloseSubscription closes a previously opened subscription.
func (g *WS) CloseSubscription(ctx context.Context, handle *SubscriptionHandle) error {
	_, err := g.roundTrip(ctx, command{
		Op:  "unsubscribe",
		SID: handle.SID,
	})
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", handle.Key, err)
	}

	g.logger.Debug("subscription closed", "key", handle.Key.String(), "sid", handle.SID)
	return nil
}

// Probe performs a ping round-trip and measures latency. The probe is
// bounded by the caller's context; it is never retried inline.
func (g *WS) Probe(ctx context.Context) (ProbeResult, error) {
	start := time.Now()
	if _, err := g.roundTrip(ctx, command{Op: "ping"}); err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{OK: true, Latency: time.Since(start)}, nil
}

// RefreshSession renews the authentication session.
func (g *WS) RefreshSession(ctx context.Context) error {
	if _, err := g.roundTrip(ctx, command{Op: "refresh_session", Token: g.cfg.AuthToken}); err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	g.logger.Info("session refreshed")
	return nil
}

// roundTrip sends a command and waits for its correlated response.
func (g *WS) roundTrip(ctx context.Context, cmd command) (response, error) {
	cmd.ID = g.cmdID.Add(1)
	respCh := make(chan response, 1)

	g.pendingMu.Lock()
	g.pending[cmd.ID] = respCh
	g.pendingMu.Unlock()

	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, cmd.ID)
		g.pendingMu.Unlock()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		return response{}, err
	}
	if err := g.send(data); err != nil {
		return response{}, err
	}

	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-time.After(g.cfg.CommandTimeout):
		return response{}, ErrTimeout
	case resp := <-respCh:
		if resp.Type == "error" {
			var em errorMsg
			json.Unmarshal(resp.Msg, &em)
			if em.Code == "session_expired" || em.Code == "unauthorized" {
				return response{}, fmt.Errorf("%s: %w", em.Message, ErrSessionExpired)
			}
			return response{}, fmt.Errorf("gateway error %s: %s", em.Code, em.Message)
		}
		return resp, nil
	}
}

// send writes raw bytes to the connection.
func (g *WS) send(data []byte) error {
	g.mu.RLock()
	conn := g.conn
	connected := g.connected
	g.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages from one connection generation and routes them.
func (g *WS) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-done:
			default:
				g.logger.Warn("gateway read failed", "error", err)
				g.markDisconnected(conn, ErrNotConnected)
			}
			return
		}

		// Command responses carry an "id" field
		if resp, ok := tryParseResponse(data); ok {
			g.routeResponse(resp)
			continue
		}

		ev, err := decodeChange(data, receivedAt)
		if err != nil {
			// Malformed payloads are dropped, never fatal
			g.logger.Warn("dropping malformed event", "error", err)
			continue
		}

		select {
		case g.events <- ev:
		case <-done:
			return
		default:
			g.logger.Warn("event buffer full, dropping event", "key", ev.Key.String())
		}
	}
}

// heartbeatLoop sends keepalive pings and detects stale connections.
func (g *WS) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(g.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				g.logger.Debug("keepalive ping failed", "error", err)
			}

			g.mu.RLock()
			lastPong := g.lastPongAt
			g.mu.RUnlock()

			if time.Since(lastPong) > g.cfg.PongTimeout {
				g.logger.Warn("no pong received, transport stale",
					"last_pong", lastPong,
					"timeout", g.cfg.PongTimeout,
				)
				g.markDisconnected(conn, ErrStaleTransport)
				return
			}
		}
	}
}

// markDisconnected flags the connection dead so the next probe fails fast,
// failing in-flight commands with the given cause. Only acts if the given
// connection is still the current generation.
func (g *WS) markDisconnected(conn *websocket.Conn, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != conn {
		return
	}
	g.connected = false
	g.conn.Close()
	g.failPending(cause)
}

// failPending answers all in-flight commands with an error response.
func (g *WS) failPending(err error) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()

	for id, ch := range g.pending {
		delete(g.pending, id)
		msg, _ := json.Marshal(errorMsg{Code: "disconnected", Message: err.Error()})
		select {
		case ch <- response{ID: id, Type: "error", Msg: msg}:
		default:
		}
	}
}

// routeResponse delivers a response to the waiting round-trip.
func (g *WS) routeResponse(resp response) {
	g.pendingMu.Lock()
	ch, ok := g.pending[resp.ID]
	if ok {
		delete(g.pending, resp.ID)
	}
	g.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// tryParseResponse attempts to parse a message as a command response.
func tryParseResponse(data []byte) (response, bool) {
	if !bytes.Contains(data, []byte(`"id":`)) {
		return response{}, false
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return response{}, false
	}

	switch resp.Type {
	case "subscribed", "unsubscribed", "pong", "ok", "error":
		return resp, true
	}
	return response{}, false
}

// decodeChange decodes a wire change notification.
func decodeChange(data []byte, receivedAt time.Time) (model.ChangeEvent, error) {
	var wire changeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.ChangeEvent{}, err
	}
	if wire.Type != "change" {
		return model.ChangeEvent{}, fmt.Errorf("unexpected message type %q", wire.Type)
	}

	var ct model.ChangeType
	switch wire.Change {
	case "insert":
		ct = model.ChangeInsert
	case "update":
		ct = model.ChangeUpdate
	case "delete":
		ct = model.ChangeDelete
	default:
		return model.ChangeEvent{}, fmt.Errorf("unknown change type %q", wire.Change)
	}

	return model.ChangeEvent{
		Key:        model.Key(wire.Resource, wire.Scope),
		Type:       ct,
		Payload:    wire.Payload,
		ReceivedAt: receivedAt,
	}, nil
}
