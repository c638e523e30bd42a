package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/avelis/boardsync/internal/gateway"
	"github.com/avelis/boardsync/internal/model"
	"github.com/avelis/boardsync/internal/router"
)

// Errors
var (
	ErrNotSubscribed = errors.New("subscriber not found for key")
)

// HandleState is the lifecycle state of a channel handle.
type HandleState string

const (
	StatePending HandleState = "pending"
	StateActive  HandleState = "active"
	StateError   HandleState = "error"
	StateClosed  HandleState = "closed"
)

// Registrar is the handler-registration surface of the event router.
type Registrar interface {
	Register(key model.ResourceKey, id model.SubscriberID, h router.Handler)
	Unregister(key model.ResourceKey, id model.SubscriberID)
}

// Stats counts live multiplexer state.
type Stats struct {
	Channels    int
	Subscribers int
}

// channelHandle owns one underlying transport subscription shared by every
// current subscriber to its key. It lives while the subscriber set is
// non-empty.
type channelHandle struct {
	key    model.ResourceKey
	filter map[string]string

	mu          sync.Mutex
	state       HandleState
	transport   *gateway.SubscriptionHandle
	subscribers map[model.SubscriberID]struct{}
}

// Mux deduplicates subscription requests: many logical subscribers
// referencing the same resource key share one transport subscription.
type Mux struct {
	transport gateway.Transport
	registrar Registrar
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[model.ResourceKey]*channelHandle

	// Collapses concurrent first-subscriber opens for the same key into
	// one transport call.
	open singleflight.Group
}

// New creates a channel multiplexer.
func New(transport gateway.Transport, registrar Registrar, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		transport: transport,
		registrar: registrar,
		logger:    logger,
		handles:   make(map[model.ResourceKey]*channelHandle),
	}
}

// Subscribe registers a handler for a key and returns a fresh subscriber
// id. The first subscriber for a key opens the underlying transport
// subscription; later ones share it. Callers must pair every Subscribe
// with an Unsubscribe on all exit paths or the transport subscription
// leaks until shutdown.
func (m *Mux) Subscribe(ctx context.Context, key model.ResourceKey, h router.Handler) (model.SubscriberID, error) {
	return m.SubscribeFiltered(ctx, key, nil, h)
}

// SubscribeFiltered is Subscribe with a transport-level filter. The filter
// of the first subscriber wins for the shared subscription.
func (m *Mux) SubscribeFiltered(ctx context.Context, key model.ResourceKey, filter map[string]string, h router.Handler) (model.SubscriberID, error) {
	id := model.SubscriberID(uuid.NewString())

	handle := m.getOrCreateHandle(key, filter)

	handle.mu.Lock()
	handle.subscribers[id] = struct{}{}
	needOpen := handle.state == StatePending || handle.state == StateError
	handle.mu.Unlock()

	m.registrar.Register(key, id, h)

	if needOpen {
		if err := m.openShared(ctx, handle); err != nil {
			m.rollback(key, id, handle)
			return "", fmt.Errorf("open subscription %s: %w", key, err)
		}
	}

	// A racing Unsubscribe may have emptied the set while the open was in
	// flight; the opener is responsible for not leaking the subscription.
	m.closeIfAbandoned(ctx, key, handle)

	m.logger.Debug("subscriber added",
		"key", key.String(),
		"subscriber", string(id),
	)
	return id, nil
}

// Unsubscribe removes a subscriber. When the subscriber set becomes empty
// the underlying transport subscription is closed synchronously and the
// handle discarded.
func (m *Mux) Unsubscribe(ctx context.Context, key model.ResourceKey, id model.SubscriberID) error {
	m.mu.Lock()
	handle := m.handles[key]
	m.mu.Unlock()

	if handle == nil {
		return ErrNotSubscribed
	}

	handle.mu.Lock()
	if _, ok := handle.subscribers[id]; !ok {
		handle.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(handle.subscribers, id)
	empty := len(handle.subscribers) == 0
	handle.mu.Unlock()

	m.registrar.Unregister(key, id)

	if empty {
		m.closeHandle(ctx, key, handle)
	}

	m.logger.Debug("subscriber removed",
		"key", key.String(),
		"subscriber", string(id),
		"closed", empty,
	)
	return nil
}

// Replay reopens the transport subscription for every live handle. Called
// by the reconnection controller after a transport is reestablished; the
// handle registry is the source of truth for what must be restored.
func (m *Mux) Replay(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*channelHandle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var errs []error
	restored := 0
	for _, handle := range handles {
		handle.mu.Lock()
		if handle.state == StateClosed || len(handle.subscribers) == 0 {
			handle.mu.Unlock()
			continue
		}
		key, filter := handle.key, handle.filter
		handle.mu.Unlock()

		th, err := m.transport.OpenSubscription(ctx, key, filter)

		handle.mu.Lock()
		if err != nil {
			handle.state = StateError
			handle.mu.Unlock()
			errs = append(errs, fmt.Errorf("replay %s: %w", key, err))
			continue
		}
		handle.transport = th
		handle.state = StateActive
		handle.mu.Unlock()
		restored++
	}

	m.logger.Info("subscriptions replayed",
		"restored", restored,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// Stats returns live channel and subscriber counts.
func (m *Mux) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Channels: len(m.handles)}
	for _, h := range m.handles {
		h.mu.Lock()
		s.Subscribers += len(h.subscribers)
		h.mu.Unlock()
	}
	return s
}

// Close tears down every handle. Used at shutdown only.
func (m *Mux) Close(ctx context.Context) error {
	m.mu.Lock()
	handles := make(map[model.ResourceKey]*channelHandle, len(m.handles))
	for k, h := range m.handles {
		handles[k] = h
	}
	m.mu.Unlock()

	var errs []error
	for key, handle := range handles {
		handle.mu.Lock()
		for id := range handle.subscribers {
			delete(handle.subscribers, id)
			m.registrar.Unregister(key, id)
		}
		handle.mu.Unlock()

		if err := m.closeHandle(ctx, key, handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getOrCreateHandle returns the live handle for a key, creating one in
// pending state when none exists. Closed handles are replaced.
func (m *Mux) getOrCreateHandle(key model.ResourceKey, filter map[string]string) *channelHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[key]; ok {
		h.mu.Lock()
		closed := h.state == StateClosed
		h.mu.Unlock()
		if !closed {
			return h
		}
	}

	h := &channelHandle{
		key:         key,
		filter:      filter,
		state:       StatePending,
		subscribers: make(map[model.SubscriberID]struct{}),
	}
	m.handles[key] = h
	return h
}

// openShared opens the transport subscription for a handle, collapsing
// concurrent callers for the same key into one transport call.
func (m *Mux) openShared(ctx context.Context, handle *channelHandle) error {
	_, err, _ := m.open.Do(handle.key.String(), func() (any, error) {
		handle.mu.Lock()
		if handle.state == StateActive {
			handle.mu.Unlock()
			return nil, nil
		}
		handle.mu.Unlock()

		th, err := m.transport.OpenSubscription(ctx, handle.key, handle.filter)
		if err != nil {
			handle.mu.Lock()
			handle.state = StateError
			handle.mu.Unlock()
			return nil, err
		}

		handle.mu.Lock()
		handle.transport = th
		handle.state = StateActive
		handle.mu.Unlock()
		return nil, nil
	})
	return err
}

// closeHandle closes the transport subscription exactly once and discards
// the handle.
func (m *Mux) closeHandle(ctx context.Context, key model.ResourceKey, handle *channelHandle) error {
	handle.mu.Lock()
	if handle.state == StateClosed {
		handle.mu.Unlock()
		return nil
	}
	// A new subscriber may have arrived since the caller saw an empty set;
	// the handle stays alive for them.
	if len(handle.subscribers) > 0 {
		handle.mu.Unlock()
		return nil
	}
	handle.state = StateClosed
	th := handle.transport
	handle.transport = nil
	handle.mu.Unlock()

	m.mu.Lock()
	if m.handles[key] == handle {
		delete(m.handles, key)
	}
	m.mu.Unlock()

	if th == nil {
		return nil
	}
	if err := m.transport.CloseSubscription(ctx, th); err != nil {
		m.logger.Warn("failed to close subscription",
			"key", key.String(),
			"error", err,
		)
		return err
	}
	return nil
}

// closeIfAbandoned closes the handle when every subscriber left while the
// open was still in flight.
func (m *Mux) closeIfAbandoned(ctx context.Context, key model.ResourceKey, handle *channelHandle) {
	handle.mu.Lock()
	abandoned := len(handle.subscribers) == 0 && handle.state == StateActive
	handle.mu.Unlock()

	if abandoned {
		m.closeHandle(ctx, key, handle)
	}
}

// rollback undoes a failed subscribe.
func (m *Mux) rollback(key model.ResourceKey, id model.SubscriberID, handle *channelHandle) {
	m.registrar.Unregister(key, id)

	handle.mu.Lock()
	delete(handle.subscribers, id)
	empty := len(handle.subscribers) == 0
	handle.mu.Unlock()

	if empty {
		m.mu.Lock()
		if m.handles[key] == handle {
			delete(m.handles, key)
		}
		m.mu.Unlock()
	}
}
