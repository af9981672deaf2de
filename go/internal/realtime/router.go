package realtime

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

// Subscription is the removal handle returned by On.
type Subscription struct {
	event string
	id    uint64
}

type listener struct {
	id uint64
	fn Handler
}

// Router fans inbound channel events out to registered listeners. Delivery
// is synchronous and unbuffered, in registration order; there is no
// queuing, so a slow listener delays the ones after it.
type Router struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]listener
}

func NewRouter() *Router {
	return &Router{
		listeners: make(map[string][]listener),
	}
}

// On registers fn for event and returns a handle usable with Off.
func (r *Router) On(event string, fn Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.listeners[event] = append(r.listeners[event], listener{id: r.nextID, fn: fn})
	return Subscription{event: event, id: r.nextID}
}

// Off removes a previously registered listener. Removing an unknown or
// already-removed subscription is a no-op.
func (r *Router) Off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.listeners[sub.event]
	for i, l := range entries {
		if l.id == sub.id {
			r.listeners[sub.event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit invokes every listener currently registered for event, in
// registration order. Dispatch iterates a snapshot taken at call time, so
// listeners that unregister themselves or others mid-dispatch do not
// affect this round's delivery.
func (r *Router) Emit(event string, data json.RawMessage) {
	r.mu.RLock()
	snapshot := make([]listener, len(r.listeners[event]))
	copy(snapshot, r.listeners[event])
	r.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(data)
	}
}
