package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wallettx/internal/events"
)

// Handler applies one envelope. A nil return acknowledges it; any error causes
// a retry, bounded when the error is Permanent.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

type HandlerFunc func(ctx context.Context, env events.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env events.Envelope) error {
	return f(ctx, env)
}

// Registry maps event types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[events.Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[events.Type]Handler)}
}

func (r *Registry) Register(eventType events.Type, h Handler) error {
	if eventType.Topic() == "" {
		return fmt.Errorf("%w: %q", events.ErrUnknownEventType, eventType)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %s", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[eventType]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerConflict, eventType)
	}
	r.handlers[eventType] = h
	return nil
}

func (r *Registry) Get(eventType events.Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[eventType]
	return h, ok
}

// Topics returns the distinct topics of the registered event types, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var topics []string
	for t := range r.handlers {
		topic := t.Topic()
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
