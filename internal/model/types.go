package model

import (
	"encoding/json"
	"time"
)

// ResourceKey identifies a logical subscription target: a resource type
// scoped to an owner (e.g. "tasks" for "user-1"). It is the multiplexing
// key — at most one transport subscription exists per distinct key.
type ResourceKey struct {
	Resource string
	Scope    string
}

// Key constructs a ResourceKey.
func Key(resource, scope string) ResourceKey {
	return ResourceKey{Resource: resource, Scope: scope}
}

// String returns the canonical "resource:scope" form.
func (k ResourceKey) String() string {
	return k.Resource + ":" + k.Scope
}

// SubscriberID is an opaque token minted per logical consumer at
// registration time. Used for reference counting, never for addressing.
type SubscriberID string

// ChangeType classifies a change notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is a change notification delivered by the transport for a
// subscribed resource.
type ChangeEvent struct {
	Key        ResourceKey
	Type       ChangeType
	Payload    json.RawMessage
	ReceivedAt time.Time
}
