package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is an in-process Broadcaster.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
	log    *slog.Logger
}

// NewHub creates an empty hub. A nil logger means slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{groups: make(map[string]map[Subscriber]struct{}), log: logger}
}

// Join registers s in group.
func (h *Hub) Join(group string, s Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.groups[group]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.groups[group] = subs
	}
	subs[s] = struct{}{}
	return nil
}

// Leave unregisters s from group.
func (h *Hub) Leave(group string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.groups[group]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.groups, group)
	}
}

// Send delivers env to every subscriber of group without blocking. An
// empty group still counts as accepted.
func (h *Hub) Send(_ context.Context, group string, env Envelope) bool {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.groups[group]))
	for s := range h.groups[group] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.Deliver(env) {
			h.log.Warn("broadcast: subscriber queue full, envelope dropped", "group", group, "type", env.Type)
		}
	}
	return true
}

// Size returns the number of subscribers in group.
func (h *Hub) Size(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
