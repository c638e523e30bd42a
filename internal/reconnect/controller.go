package reconnect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avelis/boardsync/internal/gateway"
)

// State is the controller's position in its retry state machine.
type State string

const (
	StateIdle       State = "idle"
	StateAttempting State = "attempting"
	StateExhausted  State = "exhausted"
)

// Transport is the recovery surface of the gateway.
type Transport interface {
	Reconnect(ctx context.Context) error
	RefreshSession(ctx context.Context) error
}

// Prober validates a freshly reestablished transport.
type Prober interface {
	ProbeNow(ctx context.Context) error
}

// Replayer restores subscriptions after a successful reconnection. The
// multiplexer's registry is the source of truth for what must be restored.
type Replayer interface {
	Replay(ctx context.Context) error
}

// Config holds controller configuration.
type Config struct {
	BaseDelay   time.Duration // First backoff delay
	MaxDelay    time.Duration // Backoff ceiling
	MaxAttempts int           // Terminal failure after this many attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	Attempt   int
	NextDelay time.Duration
}

// Controller recovers a failed transport with capped exponential backoff.
type Controller struct {
	cfg       Config
	transport Transport
	prober    Prober
	replayer  Replayer
	signals   <-chan struct{}
	logger    *slog.Logger

	mu        sync.RWMutex
	state     State
	attempt   int
	nextDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a reconnection controller consuming health-degraded
// signals.
func NewController(cfg Config, transport Transport, prober Prober, replayer Replayer, signals <-chan struct{}, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:       cfg,
		transport: transport,
		prober:    prober,
		replayer:  replayer,
		signals:   signals,
		logger:    logger,
		state:     StateIdle,
	}
}

// Start begins consuming degraded signals.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("reconnection controller started",
		"base_delay", c.cfg.BaseDelay,
		"max_delay", c.cfg.MaxDelay,
		"max_attempts", c.cfg.MaxAttempts,
	)
	return nil
}

// Stop shuts the controller down. An in-flight attempt cycle is abandoned
// at its next suspension point.
func (c *Controller) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("reconnection controller stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("reconnection controller stop timed out")
		return ctx.Err()
	}
}

// Status returns the current controller state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{State: c.state, Attempt: c.attempt, NextDelay: c.nextDelay}
}

// Reset moves an exhausted controller back to idle so new degraded signals
// are acted on again.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateExhausted {
		c.state = StateIdle
		c.attempt = 0
		c.nextDelay = 0
		c.logger.Info("reconnection controller reset")
	}
}

// run consumes degraded signals. A signal arriving while an attempt cycle
// is in flight is coalesced: the cycle already covers it.
func (c *Controller) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.signals:
			if c.currentState() != StateIdle {
				continue
			}
			c.attemptCycle()
		}
	}
}

func (c *Controller) currentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// attemptCycle runs backoff attempts until success or exhaustion.
func (c *Controller) attemptCycle() {
	c.mu.Lock()
	c.state = StateAttempting
	c.attempt = 0
	c.mu.Unlock()

	for {
		delay := c.backoffDelay()

		c.mu.Lock()
		attempt := c.attempt
		c.nextDelay = delay
		c.mu.Unlock()

		c.logger.Info("scheduling reconnection attempt",
			"attempt", attempt+1,
			"delay", delay,
		)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.reestablish(); err != nil {
			c.logger.Warn("reconnection attempt failed",
				"attempt", attempt+1,
				"error", err,
			)

			c.mu.Lock()
			c.attempt++
			exhausted := c.attempt >= c.cfg.MaxAttempts
			if exhausted {
				c.state = StateExhausted
			}
			c.mu.Unlock()

			if exhausted {
				c.logger.Error("reconnection attempts exhausted",
					"attempts", c.cfg.MaxAttempts,
				)
				return
			}
			continue
		}

		if err := c.replayer.Replay(c.ctx); err != nil {
			c.logger.Warn("subscription replay incomplete", "error", err)
		}

		c.mu.Lock()
		c.state = StateIdle
		c.attempt = 0
		c.nextDelay = 0
		c.mu.Unlock()

		c.logger.Info("reconnected")
		return
	}
}

// reestablish reopens the transport and validates it with an immediate
// probe. Session expiry triggers a refresh before one more try.
func (c *Controller) reestablish() error {
	err := c.transport.Reconnect(c.ctx)
	if errors.Is(err, gateway.ErrSessionExpired) {
		if rerr := c.transport.RefreshSession(c.ctx); rerr != nil {
			return rerr
		}
		err = c.transport.Reconnect(c.ctx)
	}
	if err != nil {
		return err
	}

	return c.prober.ProbeNow(c.ctx)
}

// backoffDelay computes min(base * 2^attempt, max).
func (c *Controller) backoffDelay() time.Duration {
	c.mu.RLock()
	attempt := c.attempt
	c.mu.RUnlock()

	d := c.cfg.BaseDelay << uint(attempt)
	if d <= 0 || d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	return d
}
