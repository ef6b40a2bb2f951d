package backend

import (
	"sync"

	"github.com/strandq/strand/id"
	"github.com/strandq/strand/job"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	// EventAdmitted fires when a job is added to the queue.
	EventAdmitted EventType = "admitted"
	// EventActive fires when a processor picks a job up.
	EventActive EventType = "active"
	// EventCompleted fires when a job finishes successfully.
	EventCompleted EventType = "completed"
	// EventFailed fires when a job terminally fails.
	EventFailed EventType = "failed"
	// EventProgress fires when a processor reports progress.
	EventProgress EventType = "progress"
	// EventPaused / EventResumed fire on queue pause state changes.
	EventPaused  EventType = "paused"
	EventResumed EventType = "resumed"
	// EventDrained fires when waiting and delayed jobs are removed.
	EventDrained EventType = "drained"
	// EventError fires for backend-internal errors on best-effort paths.
	EventError EventType = "error"
)

// Event is a lifecycle notification. Job and Err are set when relevant
// to the event type.
type Event struct {
	Type     EventType
	Job      *job.Job
	Err      error
	Progress int
}

// Handler receives lifecycle events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Subscription is the token returned by Subscribe, passed to
// Unsubscribe. Handlers are functions and functions are not comparable,
// so unsubscription goes through this token rather than by handler value.
type Subscription struct {
	ID      id.SubscriberID
	handler Handler
}

// Hub is the subscriber registry shared by backend implementations.
// Safe for concurrent use. The zero value is not usable; call NewHub.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewHub creates an empty subscriber hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

// Subscribe registers a handler and returns its subscription token.
func (h *Hub) Subscribe(handler Handler) *Subscription {
	s := &Subscription{ID: id.NewSubscriberID(), handler: handler}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s.ID.String()] = s
	return s
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.ID.String())
}

// Emit delivers an event to every subscriber. Handlers run outside the
// lock so they may call Subscribe or Unsubscribe themselves.
func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		s.handler(e)
	}
}
