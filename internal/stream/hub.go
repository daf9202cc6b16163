// Package stream implements the live event hub: an in-process
// publish/subscribe with a per-subscriber project filter, used to back the
// debug SSE endpoint.
package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// Handler receives events a subscriber's filter accepts. It must not block
// for long; slow consumers should detach their own work.
type Handler func(e *models.Event)

type subscriber struct {
	id      string
	project string
	handler Handler
}

// Hub is the process-wide singleton that fans events out to subscribers.
// There is one Hub per daemon instance, constructed at start-up and
// threaded into the HTTP handlers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]subscriber
	logger *slog.Logger
}

// New constructs an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: map[string]subscriber{}, logger: logger}
}

// Subscribe registers handler for events whose ProjectName equals project
// (or all projects, when project is ""). It returns an id to pass to
// Unsubscribe.
func (h *Hub) Subscribe(project string, handler Handler) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.subs[id] = subscriber{id: id, project: project, handler: handler}
	h.mu.Unlock()
	return id
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Publish invokes every matching subscriber's handler synchronously, in the
// order subscribers are stored (no cross-subscriber ordering guarantee
// beyond that). A panicking handler is contained so it cannot break the
// publish call for other subscribers or the caller.
func (h *Hub) Publish(e *models.Event) {
	h.mu.RLock()
	matched := make([]subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if s.project == "" || s.project == e.ProjectName {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range matched {
		h.invoke(s, e)
	}
}

func (h *Hub) invoke(s subscriber, e *models.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("stream: subscriber handler panicked", "subscriber", s.id, "panic", r)
		}
	}()
	s.handler(e)
}

// SubscriberCount reports the number of active subscribers, for /health
// and /queue diagnostics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
