package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/gateway"
	"github.com/avelis/boardsync/internal/health"
	"github.com/avelis/boardsync/internal/model"
	"github.com/avelis/boardsync/internal/mux"
	"github.com/avelis/boardsync/internal/reconnect"
	"github.com/avelis/boardsync/internal/router"
)

// ConnectionStatus is the read-only connection view exposed to the UI
// layer. Persistent disconnection shows up here as a degraded reading,
// never as a blocking error.
type ConnectionStatus struct {
	IsConnected       bool          `json:"is_connected"`
	LatencyMs         int64         `json:"latency_ms"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	ReconnectState    string        `json:"reconnect_state"`
	Rating            health.Rating `json:"rating"`
}

// Service wires the realtime subsystem together and owns its lifecycle.
// One instance per process; construct, Start, use, Stop.
type Service struct {
	gw      gateway.Gateway
	monitor *health.Monitor
	ctrl    *reconnect.Controller
	mux     *mux.Mux
	router  *router.Router
	audit   *auditlog.Batcher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the realtime service from its components.
func New(
	gw gateway.Gateway,
	monitor *health.Monitor,
	ctrl *reconnect.Controller,
	m *mux.Mux,
	r *router.Router,
	audit *auditlog.Batcher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gw:      gw,
		monitor: monitor,
		ctrl:    ctrl,
		mux:     m,
		router:  r,
		audit:   audit,
		logger:  logger,
	}
}

// Start connects the gateway and starts every component plus the dispatch
// loop feeding gateway events into the router.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.audit.Start(s.ctx); err != nil {
		return err
	}

	if err := s.gw.Connect(s.ctx); err != nil {
		// Start degraded: failed probes on a transport that never came up
		// pulse the controller, which retries with backoff. The UI keeps
		// working on last-known-good data meanwhile.
		s.logger.Warn("initial gateway connect failed", "error", err)
	}

	if err := s.monitor.Start(s.ctx); err != nil {
		return err
	}
	if err := s.ctrl.Start(s.ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.dispatchLoop()

	s.audit.Log("realtime_started", auditlog.StatusInfo, "", nil)
	s.logger.Info("realtime service started")
	return nil
}

// Stop shuts everything down in reverse order, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping realtime service")

	if err := s.ctrl.Stop(ctx); err != nil {
		s.logger.Warn("controller stop", "error", err)
	}
	if err := s.monitor.Stop(ctx); err != nil {
		s.logger.Warn("monitor stop", "error", err)
	}
	if err := s.mux.Close(ctx); err != nil {
		s.logger.Warn("mux close", "error", err)
	}
	if err := s.gw.Close(); err != nil {
		s.logger.Warn("gateway close", "error", err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("dispatch loop stop timed out")
	}

	// Batcher last so shutdown entries still flush
	if err := s.audit.Stop(ctx); err != nil {
		s.logger.Warn("audit batcher stop", "error", err)
	}

	s.logger.Info("realtime service stopped")
	return nil
}

// Subscribe registers a handler for changes to a resource key.
func (s *Service) Subscribe(ctx context.Context, key model.ResourceKey, h router.Handler) (model.SubscriberID, error) {
	return s.mux.Subscribe(ctx, key, h)
}

// Unsubscribe releases a subscription.
func (s *Service) Unsubscribe(ctx context.Context, key model.ResourceKey, id model.SubscriberID) error {
	return s.mux.Unsubscribe(ctx, key, id)
}

// Log records a structured audit entry, fire-and-forget.
func (s *Service) Log(action string, status auditlog.Status, detail string, metadata map[string]any) {
	s.audit.Log(action, status, detail, metadata)
}

// ResetReconnect moves an exhausted reconnection controller back to idle
// so the next degraded signal starts a fresh attempt cycle. No-op in any
// other state.
func (s *Service) ResetReconnect() {
	s.ctrl.Reset()
}

// ConnectionStatus reports the current transport health and recovery
// state. Reconnect exhaustion surfaces here as disconnected.
func (s *Service) ConnectionStatus() ConnectionStatus {
	snap := s.monitor.Snapshot()
	rs := s.ctrl.Status()

	return ConnectionStatus{
		IsConnected:       snap.State == health.StateOpen && rs.State != reconnect.StateExhausted,
		LatencyMs:         snap.Latency.Milliseconds(),
		ReconnectAttempts: rs.Attempt,
		ReconnectState:    string(rs.State),
		Rating:            s.monitor.Rating(),
	}
}

// dispatchLoop feeds decoded gateway events into the router. Single
// goroutine, so per-key handler order follows transport delivery order.
func (s *Service) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.gw.Events():
			if !ok {
				return
			}
			s.router.Dispatch(ev)
		}
	}
}
