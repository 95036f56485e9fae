package identity

import "time"

type EventKind string

const (
	EventPendingCreated  EventKind = "pending_created"
	EventPendingExpired  EventKind = "pending_expired"
	EventPendingRejected EventKind = "pending_rejected"
	EventPromoted        EventKind = "promoted"
	EventActiveExpired   EventKind = "active_expired"
	EventReset           EventKind = "reset"
)

// Event records one identity lifecycle transition.
type Event struct {
	Kind         EventKind `json:"kind"`
	IdentityID   string    `json:"identity_id,omitempty"`
	SourceID     string    `json:"source_id,omitempty"` // pending id consumed by a promotion
	Observations int       `json:"observations"`
	Strength     float64   `json:"strength"`
	At           time.Time `json:"at"`
}

// Observer receives lifecycle events. Observe is called after the model has
// released its lock, so it may call back into the model, but it must not
// block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
