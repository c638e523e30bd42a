package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/model"
)

// Handler receives change events for a resource key. Handlers must be
// idempotent: the transport may redeliver identical events.
type Handler interface {
	OnChange(ev model.ChangeEvent)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(model.ChangeEvent)

func (f HandlerFunc) OnChange(ev model.ChangeEvent) {
	f(ev)
}

// Recorder records dispatch failures. Satisfied by *auditlog.Batcher.
type Recorder interface {
	Log(action string, status auditlog.Status, detail string, metadata map[string]any)
}

// Stats contains dispatch counters.
type Stats struct {
	Dispatched int64
	Delivered  int64
	Panics     int64
	NoHandlers int64
}

// registration pairs a handler with its subscriber identity.
type registration struct {
	id      model.SubscriberID
	handler Handler
}

// Router fans change notifications out to the handlers registered for
// their resource key, in registration order.
type Router struct {
	logger *slog.Logger
	audit  Recorder

	mu       sync.RWMutex
	handlers map[model.ResourceKey][]registration
	stats    Stats
}

// New creates an event router.
func New(audit Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger,
		audit:    audit,
		handlers: make(map[model.ResourceKey][]registration),
	}
}

// Register adds a handler for a key. Registration order is dispatch order.
func (r *Router) Register(key model.ResourceKey, id model.SubscriberID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = append(r.handlers[key], registration{id: id, handler: h})
}

// Unregister removes a handler. Synchronous: the handler sees no events
// dispatched after Unregister returns.
func (r *Router) Unregister(key model.ResourceKey, id model.SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[key]
	for i, reg := range regs {
		if reg.id == id {
			r.handlers[key] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.handlers[key]) == 0 {
		delete(r.handlers, key)
	}
}

// HandlerCount returns the number of handlers registered for a key.
func (r *Router) HandlerCount(key model.ResourceKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key])
}

// Stats returns current dispatch counters.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Dispatch invokes every handler registered for the event's key, in
// registration order, synchronously in the caller's goroutine. A panicking
// handler is isolated: the failure is logged and the remaining handlers
// still run.
func (r *Router) Dispatch(ev model.ChangeEvent) {
	r.mu.RLock()
	regs := make([]registration, len(r.handlers[ev.Key]))
	copy(regs, r.handlers[ev.Key])
	r.mu.RUnlock()

	r.mu.Lock()
	r.stats.Dispatched++
	if len(regs) == 0 {
		r.stats.NoHandlers++
	}
	r.mu.Unlock()

	for _, reg := range regs {
		r.invoke(reg, ev)
	}
}

// invoke runs one handler with panic isolation.
func (r *Router) invoke(reg registration, ev model.ChangeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.stats.Panics++
			r.mu.Unlock()

			r.logger.Error("handler panicked during dispatch",
				"key", ev.Key.String(),
				"change", ev.Type,
				"panic", rec,
			)
			if r.audit != nil {
				r.audit.Log("event_dispatch", auditlog.StatusError,
					fmt.Sprintf("handler panic: %v", rec),
					map[string]any{
						"resource": ev.Key.Resource,
						"scope":    ev.Key.Scope,
						"change":   string(ev.Type),
					},
				)
			}
		}
	}()

	reg.handler.OnChange(ev)

	r.mu.Lock()
	r.stats.Delivered++
	r.mu.Unlock()
}
