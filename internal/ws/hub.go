package ws

import (
	"sync"

	"github.com/fathima-sithara/conversation-service/internal/events"
)

// Subscription is one live query. Notify re-runs the query and pushes the
// fresh result to its connection.
type Subscription struct {
	ID     string
	Query  string
	Topics []string
	Notify func()
}

// Hub routes change events to the subscriptions listening on their topics.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: map[string]map[*Subscription]struct{}{}}
}

func (h *Hub) Add(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range sub.Topics {
		set, ok := h.topics[t]
		if !ok {
			set = map[*Subscription]struct{}{}
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
}

func (h *Hub) Remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range sub.Topics {
		set := h.topics[t]
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, t)
		}
	}
}

// Dispatch notifies every subscription on any of the event's topics once.
func (h *Hub) Dispatch(ev events.Event) {
	h.mu.RLock()
	seen := map[*Subscription]struct{}{}
	targets := []*Subscription{}
	for _, t := range ev.Topics {
		for sub := range h.topics[t] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.Notify()
	}
}

// Topics returns the number of topics with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}
