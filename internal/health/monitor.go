package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avelis/boardsync/internal/gateway"
)

// State describes the transport connection state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Snapshot is a point-in-time view of connection health.
type Snapshot struct {
	State               State
	LastProbeAt         time.Time
	Latency             time.Duration
	ConsecutiveFailures int
}

// Prober performs the minimal round-trip the monitor measures.
type Prober interface {
	Probe(ctx context.Context) (gateway.ProbeResult, error)
}

// Config holds monitor configuration.
type Config struct {
	Interval     time.Duration // Probe cadence
	ProbeTimeout time.Duration // Per-probe deadline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     20 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// Monitor periodically probes the transport and tracks connection health.
// It is the sole mutator of the health snapshot; everyone else reads.
type Monitor struct {
	cfg    Config
	prober Prober
	logger *slog.Logger

	mu     sync.RWMutex
	health Snapshot

	// Degraded signal, coalesced: a pending signal absorbs new ones
	degraded chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a connection health monitor.
func NewMonitor(cfg Config, prober Prober, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		prober:   prober,
		logger:   logger,
		health:   Snapshot{State: StateConnecting},
		degraded: make(chan struct{}, 1),
	}
}

// Start begins the periodic probe loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("health monitor started",
		"interval", m.cfg.Interval,
		"probe_timeout", m.cfg.ProbeTimeout,
	)
	return nil
}

// Stop shuts the monitor down.
func (m *Monitor) Stop(ctx context.Context) error {
	m.setState(StateClosing)

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("health monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("health monitor stop timed out")
	}

	m.setState(StateClosed)
	return nil
}

// Degraded returns the signal channel pulsed when an open transport is
// observed failing, or when probes fail before the transport ever came
// up. Consumed by the reconnection controller.
func (m *Monitor) Degraded() <-chan struct{} {
	return m.degraded
}

// Snapshot returns the current health view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// ProbeNow performs one probe outside the normal cadence and reports its
// outcome. Used by the reconnection controller to validate a fresh
// transport immediately.
func (m *Monitor) ProbeNow(ctx context.Context) error {
	return m.probe(ctx)
}

// run is the periodic probe loop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	m.probe(m.ctx)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probe(m.ctx)
		}
	}
}

// probe performs one bounded round-trip and records the outcome. A probe
// exceeding its deadline is abandoned; the next tick handles retry.
func (m *Monitor) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	res, err := m.prober.Probe(probeCtx)
	if err == nil && !res.OK {
		err = errors.New("probe rejected")
	}

	if err != nil {
		m.recordFailure(err)
		return err
	}

	m.recordSuccess(res.Latency)
	return nil
}

func (m *Monitor) recordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.health.State = StateOpen
	m.health.LastProbeAt = time.Now()
	m.health.Latency = latency
	m.health.ConsecutiveFailures = 0
}

func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	m.health.LastProbeAt = time.Now()
	m.health.ConsecutiveFailures++
	wasOpen := m.health.State == StateOpen
	neverOpened := m.health.State == StateConnecting
	if wasOpen {
		m.health.State = StateClosed
	}
	failures := m.health.ConsecutiveFailures
	m.mu.Unlock()

	m.logger.Warn("probe failed",
		"error", err,
		"consecutive_failures", failures,
	)

	// An open transport observed failing is degraded. So is one that never
	// came up: without this, a failed initial connect would wait forever
	// for an open->closed transition that cannot happen.
	if wasOpen || neverOpened {
		select {
		case m.degraded <- struct{}{}:
		default:
		}
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.health.State = s
	m.mu.Unlock()
}
