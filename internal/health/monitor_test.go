package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avelis/boardsync/internal/gateway"
)

// fakeProber replays a scripted sequence of probe outcomes.
type fakeProber struct {
	mu      sync.Mutex
	results []error
	latency time.Duration
}

func (f *fakeProber) Probe(ctx context.Context) (gateway.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		f.results = f.results[1:]
	}
	if err != nil {
		return gateway.ProbeResult{}, err
	}
	return gateway.ProbeResult{OK: true, Latency: f.latency}, nil
}

// blockingProber never answers; only the probe deadline frees the caller.
type blockingProber struct{}

func (blockingProber) Probe(ctx context.Context) (gateway.ProbeResult, error) {
	<-ctx.Done()
	return gateway.ProbeResult{}, ctx.Err()
}

func TestMonitor_ConsecutiveFailureAccounting(t *testing.T) {
	probeErr := errors.New("probe failed")
	prober := &fakeProber{results: []error{probeErr, probeErr, nil, probeErr}}
	m := NewMonitor(DefaultConfig(), prober, nil)
	ctx := context.Background()

	wantFailures := []int{1, 2, 0, 1}
	for i, want := range wantFailures {
		m.ProbeNow(ctx)
		if got := m.Snapshot().ConsecutiveFailures; got != want {
			t.Errorf("probe %d: ConsecutiveFailures = %d, want %d", i, got, want)
		}
	}
}

func TestMonitor_SuccessOpensAndRecordsLatency(t *testing.T) {
	prober := &fakeProber{latency: 42 * time.Millisecond}
	m := NewMonitor(DefaultConfig(), prober, nil)

	if err := m.ProbeNow(context.Background()); err != nil {
		t.Fatalf("ProbeNow failed: %v", err)
	}

	snap := m.Snapshot()
	if snap.State != StateOpen {
		t.Errorf("State = %s, want open", snap.State)
	}
	if snap.Latency != 42*time.Millisecond {
		t.Errorf("Latency = %s, want 42ms", snap.Latency)
	}
	if snap.LastProbeAt.IsZero() {
		t.Error("LastProbeAt not recorded")
	}
}

func TestMonitor_DegradedSignalOnOpenToClosed(t *testing.T) {
	prober := &fakeProber{results: []error{nil, errors.New("gone")}}
	m := NewMonitor(DefaultConfig(), prober, nil)
	ctx := context.Background()

	m.ProbeNow(ctx) // open
	m.ProbeNow(ctx) // fails: open -> closed

	select {
	case <-m.Degraded():
	default:
		t.Fatal("no degraded signal after open -> closed transition")
	}

	if got := m.Snapshot().State; got != StateClosed {
		t.Errorf("State = %s, want closed", got)
	}
}

func TestMonitor_DegradedSignalWhileConnecting(t *testing.T) {
	prober := &fakeProber{results: []error{errors.New("never up")}}
	m := NewMonitor(DefaultConfig(), prober, nil)

	m.ProbeNow(context.Background())

	select {
	case <-m.Degraded():
	default:
		t.Fatal("no degraded signal for a transport that never came up")
	}

	if got := m.Snapshot().State; got != StateConnecting {
		t.Errorf("State = %s, want connecting", got)
	}
}

func TestMonitor_NoRepeatSignalWhileClosed(t *testing.T) {
	failErr := errors.New("gone")
	prober := &fakeProber{results: []error{nil, failErr, failErr}}
	m := NewMonitor(DefaultConfig(), prober, nil)
	ctx := context.Background()

	m.ProbeNow(ctx) // open
	m.ProbeNow(ctx) // open -> closed, signals
	<-m.Degraded()

	m.ProbeNow(ctx) // still closed, already signalled

	select {
	case <-m.Degraded():
		t.Error("degraded signal repeated while already closed")
	default:
	}
}

func TestMonitor_ProbeDeadlineAbandons(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = 20 * time.Millisecond
	m := NewMonitor(cfg, blockingProber{}, nil)

	start := time.Now()
	err := m.ProbeNow(context.Background())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("ProbeNow succeeded, want deadline error")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("probe blocked for %s, want prompt abandonment", elapsed)
	}
	if got := m.Snapshot().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.ProbeTimeout = 5 * time.Millisecond
	m := NewMonitor(cfg, &fakeProber{}, nil)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for m.Snapshot().State != StateOpen && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := m.Snapshot().State; got != StateOpen {
		t.Fatalf("State = %s, want open after probes", got)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if got := m.Snapshot().State; got != StateClosed {
		t.Errorf("State after Stop = %s, want closed", got)
	}
}

func TestScoreBuckets(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want int
	}{
		{"closed", Snapshot{State: StateClosed, Latency: 10 * time.Millisecond}, 0},
		{"fast", Snapshot{State: StateOpen, Latency: 30 * time.Millisecond}, 100},
		{"ok", Snapshot{State: StateOpen, Latency: 100 * time.Millisecond}, 80},
		{"slow", Snapshot{State: StateOpen, Latency: 300 * time.Millisecond}, 60},
		{"bad", Snapshot{State: StateOpen, Latency: 800 * time.Millisecond}, 40},
		{"awful", Snapshot{State: StateOpen, Latency: 3 * time.Second}, 20},
	}

	for _, tt := range tests {
		if got := score(tt.snap); got != tt.want {
			t.Errorf("%s: score = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRating(t *testing.T) {
	prober := &fakeProber{latency: 30 * time.Millisecond}
	m := NewMonitor(DefaultConfig(), prober, nil)

	if got := m.Rating(); got != RatingPoor {
		t.Errorf("Rating before open = %s, want poor", got)
	}

	m.ProbeNow(context.Background())
	if got := m.Rating(); got != RatingExcellent {
		t.Errorf("Rating = %s, want excellent", got)
	}
}
