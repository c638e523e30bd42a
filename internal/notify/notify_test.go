package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/model"
)

type fakeRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeRecorder) Log(action string, status auditlog.Status, detail string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func clock(hour, minute int) time.Time {
	return time.Date(2026, 8, 23, hour, minute, 0, 0, time.Local)
}

func TestWindow_WrapsMidnight(t *testing.T) {
	w, err := ParseWindow("22:00", "07:00")
	if err != nil {
		t.Fatalf("ParseWindow failed: %v", err)
	}

	tests := []struct {
		hour, minute int
		want         bool
	}{
		{23, 0, true},
		{3, 0, true},
		{22, 0, true},  // start is inclusive
		{7, 0, false},  // end is exclusive
		{6, 59, true},
		{12, 0, false},
		{21, 59, false},
	}

	for _, tt := range tests {
		if got := w.Contains(clock(tt.hour, tt.minute)); got != tt.want {
			t.Errorf("Contains(%02d:%02d) = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestWindow_SameDay(t *testing.T) {
	w, err := ParseWindow("09:00", "17:00")
	if err != nil {
		t.Fatalf("ParseWindow failed: %v", err)
	}

	tests := []struct {
		hour, minute int
		want         bool
	}{
		{12, 0, true},
		{9, 0, true},
		{17, 0, false},
		{8, 59, false},
		{23, 0, false},
	}

	for _, tt := range tests {
		if got := w.Contains(clock(tt.hour, tt.minute)); got != tt.want {
			t.Errorf("Contains(%02d:%02d) = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestWindow_DegenerateNeverQuiet(t *testing.T) {
	w, _ := ParseWindow("08:00", "08:00")
	for hour := 0; hour < 24; hour++ {
		if w.Contains(clock(hour, 0)) {
			t.Errorf("Contains(%02d:00) = true for zero-length window", hour)
		}
	}
}

func TestParseWindow_Invalid(t *testing.T) {
	for _, bad := range []string{"25:00", "nope", "9am", ""} {
		if _, err := ParseWindow(bad, "07:00"); err == nil {
			t.Errorf("ParseWindow(%q) succeeded, want error", bad)
		}
	}
}

func TestNotifier_EmitsOutsideQuietHours(t *testing.T) {
	rec := &fakeRecorder{}
	w, _ := ParseWindow("22:00", "07:00")
	n := New(w, rec, nil)
	n.now = func() time.Time { return clock(14, 0) }

	n.OnChange(model.ChangeEvent{Key: model.Key("tasks", "user-1"), Type: model.ChangeUpdate})

	if got := rec.count(); got != 1 {
		t.Fatalf("audit records = %d, want 1", got)
	}
	if rec.actions[0] != "notification_emitted" {
		t.Errorf("action = %s, want notification_emitted", rec.actions[0])
	}
	emitted, suppressed := n.Counts()
	if emitted != 1 || suppressed != 0 {
		t.Errorf("Counts = (%d, %d), want (1, 0)", emitted, suppressed)
	}
}

func TestNotifier_SuppressesDuringQuietHours(t *testing.T) {
	rec := &fakeRecorder{}
	w, _ := ParseWindow("22:00", "07:00")
	n := New(w, rec, nil)
	n.now = func() time.Time { return clock(23, 30) }

	n.OnChange(model.ChangeEvent{Key: model.Key("tasks", "user-1"), Type: model.ChangeInsert})

	if got := rec.count(); got != 0 {
		t.Errorf("audit records = %d, want 0 (suppressed)", got)
	}
	emitted, suppressed := n.Counts()
	if emitted != 0 || suppressed != 1 {
		t.Errorf("Counts = (%d, %d), want (0, 1)", emitted, suppressed)
	}
}
