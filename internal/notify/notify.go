package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/model"
)

// Window is a daily quiet-hours window in local time. A window whose start
// is after its end wraps past midnight: 22:00-07:00 covers the evening and
// the following morning.
type Window struct {
	start int // minutes since midnight
	end   int
}

// ParseWindow parses "HH:MM" start and end times into a Window.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return Window{}, fmt.Errorf("quiet start: %w", err)
	}
	e, err := parseMinutes(end)
	if err != nil {
		return Window{}, fmt.Errorf("quiet end: %w", err)
	}
	return Window{start: s, end: e}, nil
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.start == w.end {
		// Degenerate window, never quiet
		return false
	}
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	// Wraps midnight: in the window when past start OR before end
	return m >= w.start || m < w.end
}

// Recorder records emitted notifications. Satisfied by *auditlog.Batcher.
type Recorder interface {
	Log(action string, status auditlog.Status, detail string, metadata map[string]any)
}

// Notifier turns change events into notification records, suppressed
// during quiet hours. It implements the router handler contract and is
// idempotent with respect to redelivered events.
type Notifier struct {
	quiet  Window
	audit  Recorder
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	emitted    int64
	suppressed int64
}

// New creates a notifier with the given quiet-hours window.
func New(quiet Window, audit Recorder, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		quiet:  quiet,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// OnChange emits a notification record for a change event unless the
// current time is inside quiet hours.
func (n *Notifier) OnChange(ev model.ChangeEvent) {
	if n.quiet.Contains(n.now()) {
		n.mu.Lock()
		n.suppressed++
		n.mu.Unlock()
		n.logger.Debug("notification suppressed by quiet hours",
			"key", ev.Key.String(),
			"change", ev.Type,
		)
		return
	}

	n.mu.Lock()
	n.emitted++
	n.mu.Unlock()

	n.audit.Log("notification_emitted", auditlog.StatusInfo,
		fmt.Sprintf("%s changed (%s)", ev.Key.Resource, ev.Type),
		map[string]any{
			"resource": ev.Key.Resource,
			"scope":    ev.Key.Scope,
			"change":   string(ev.Type),
		},
	)
}

// Counts returns (emitted, suppressed) totals.
func (n *Notifier) Counts() (int64, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.emitted, n.suppressed
}
