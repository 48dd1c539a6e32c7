package provider

import (
	"sync"

	"nuha.dev/bustracker/internal/location"
)

// Hub keeps the active subscriptions of a provider and delivers samples to
// the ones whose policy gate lets them through.
type Hub struct {
	mu     sync.Mutex
	list   map[*hubSub]bool
	status Status
}

type hubSub struct {
	hub  *Hub
	gate *location.Gate
	l    Listener
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{list: make(map[*hubSub]bool)}
}

func (h *Hub) Add(p location.Policy, l Listener) Subscription {
	s := &hubSub{hub: h, gate: location.NewGate(p), l: l}
	h.mu.Lock()
	h.list[s] = true
	h.mu.Unlock()
	return s
}

func (s *hubSub) Remove() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.list, s)
		s.hub.mu.Unlock()
	})
}

func (h *Hub) snapshot() []*hubSub {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*hubSub, 0, len(h.list))
	for s := range h.list {
		subs = append(subs, s)
	}
	return subs
}

func (h *Hub) active(s *hubSub) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.list[s]
}

// Deliver runs listeners outside the hub lock; a subscription removed while
// delivery is in progress does not receive the sample.
func (h *Hub) Deliver(s location.Sample) int {
	n := 0
	for _, sub := range h.snapshot() {
		if !h.active(sub) || !sub.gate.Allow(s) {
			continue
		}
		sub.l.OnLocation(s)
		n++
	}
	return n
}

// Status forwards st to every listener. When the provider becomes enabled
// again the gates restart, so the first fix after an outage is delivered.
func (h *Hub) Status(st Status) {
	h.mu.Lock()
	reenabled := st == StatusEnabled && h.status != StatusEnabled
	h.status = st
	h.mu.Unlock()
	for _, sub := range h.snapshot() {
		if reenabled {
			sub.gate.Reset()
		}
		sub.l.OnProviderStatus(st)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.list)
}
