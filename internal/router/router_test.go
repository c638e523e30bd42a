package router

import (
	"sync"
	"testing"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/model"
)

// fakeRecorder captures audit entries from dispatch failures.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeRecorder) Log(action string, status auditlog.Status, detail string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, action+"/"+string(status))
}

func event(key model.ResourceKey) model.ChangeEvent {
	return model.ChangeEvent{Key: key, Type: model.ChangeUpdate}
}

func TestRouter_DispatchInRegistrationOrder(t *testing.T) {
	r := New(&fakeRecorder{}, nil)
	key := model.Key("tasks", "user-1")

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		r.Register(key, model.SubscriberID(name), HandlerFunc(func(model.ChangeEvent) {
			order = append(order, name)
		}))
	}

	r.Dispatch(event(key))

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("invoked %d handlers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestRouter_PanicDoesNotStopSiblings(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(rec, nil)
	key := model.Key("projects", "p-1")

	secondRan := false
	r.Register(key, "panicky", HandlerFunc(func(model.ChangeEvent) {
		panic("boom")
	}))
	r.Register(key, "steady", HandlerFunc(func(model.ChangeEvent) {
		secondRan = true
	}))

	r.Dispatch(event(key))

	if !secondRan {
		t.Error("second handler did not run after first panicked")
	}
	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(rec.entries))
	}
	if rec.entries[0] != "event_dispatch/error" {
		t.Errorf("audit entry = %s, want event_dispatch/error", rec.entries[0])
	}
	if s := r.Stats(); s.Panics != 1 {
		t.Errorf("Panics = %d, want 1", s.Panics)
	}
}

func TestRouter_UnregisterStopsDelivery(t *testing.T) {
	r := New(&fakeRecorder{}, nil)
	key := model.Key("tasks", "user-1")

	calls := 0
	r.Register(key, "sub-1", HandlerFunc(func(model.ChangeEvent) {
		calls++
	}))

	r.Dispatch(event(key))
	r.Unregister(key, "sub-1")
	r.Dispatch(event(key))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := r.HandlerCount(key); got != 0 {
		t.Errorf("HandlerCount = %d, want 0", got)
	}
}

func TestRouter_KeysAreIsolated(t *testing.T) {
	r := New(&fakeRecorder{}, nil)
	tasks := model.Key("tasks", "user-1")
	projects := model.Key("projects", "p-1")

	taskCalls, projectCalls := 0, 0
	r.Register(tasks, "a", HandlerFunc(func(model.ChangeEvent) { taskCalls++ }))
	r.Register(projects, "b", HandlerFunc(func(model.ChangeEvent) { projectCalls++ }))

	r.Dispatch(event(tasks))

	if taskCalls != 1 {
		t.Errorf("taskCalls = %d, want 1", taskCalls)
	}
	if projectCalls != 0 {
		t.Errorf("projectCalls = %d, want 0", projectCalls)
	}
}

func TestRouter_Stats(t *testing.T) {
	r := New(&fakeRecorder{}, nil)
	key := model.Key("tasks", "user-1")

	r.Dispatch(event(key)) // no handlers yet

	r.Register(key, "a", HandlerFunc(func(model.ChangeEvent) {}))
	r.Dispatch(event(key))

	s := r.Stats()
	if s.Dispatched != 2 {
		t.Errorf("Dispatched = %d, want 2", s.Dispatched)
	}
	if s.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", s.Delivered)
	}
	if s.NoHandlers != 1 {
		t.Errorf("NoHandlers = %d, want 1", s.NoHandlers)
	}
}
