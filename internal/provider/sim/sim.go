// Package sim is an in-memory location provider. Samples are pushed with
// Emit and go through the same policy gate as a real device feed.
package sim

import (
	"errors"
	"sync"

	"nuha.dev/bustracker/internal/location"
	"nuha.dev/bustracker/internal/provider"
)

var ErrUnavailable = errors.New("provider unavailable")

type Sim struct {
	mu          sync.Mutex
	auth        provider.Authorization
	unavailable bool
	hub         *provider.Hub
}

func New(auth provider.Authorization) *Sim {
	return &Sim{auth: auth, hub: provider.NewHub()}
}

func (s *Sim) Name() string {
	return "sim"
}

func (s *Sim) Authorization() provider.Authorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Sim) SetAuthorization(a provider.Authorization) {
	s.mu.Lock()
	s.auth = a
	s.mu.Unlock()
}

// SetUnavailable makes subsequent RequestUpdates calls fail.
func (s *Sim) SetUnavailable(v bool) {
	s.mu.Lock()
	s.unavailable = v
	s.mu.Unlock()
}

func (s *Sim) RequestUpdates(p location.Policy, l provider.Listener) (provider.Subscription, error) {
	s.mu.Lock()
	unavailable := s.unavailable
	s.mu.Unlock()
	if unavailable {
		return nil, ErrUnavailable
	}
	return s.hub.Add(p, l), nil
}

// Emit delivers a sample and returns the number of listeners that got it.
func (s *Sim) Emit(lat, lon float64) int {
	return s.hub.Deliver(location.Sample{Latitude: lat, Longitude: lon})
}

func (s *Sim) EmitSample(sample location.Sample) int {
	return s.hub.Deliver(sample)
}

func (s *Sim) EmitStatus(st provider.Status) {
	s.hub.Status(st)
}

func (s *Sim) Subscribers() int {
	return s.hub.Len()
}
