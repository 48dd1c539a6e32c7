package sim

import (
	"testing"

	"nuha.dev/bustracker/internal/location"
	"nuha.dev/bustracker/internal/provider"
)

type countListener struct {
	samples []location.Sample
	status  []provider.Status
}

func (l *countListener) OnLocation(s location.Sample) {
	l.samples = append(l.samples, s)
}

func (l *countListener) OnProviderStatus(st provider.Status) {
	l.status = append(l.status, st)
}

func TestEmit(t *testing.T) {
	s := New(provider.AuthFine)
	l := &countListener{}
	sub, err := s.RequestUpdates(location.Policy{}, l)
	if err != nil {
		t.Fatal(err)
	}
	if n := s.Emit(40, -3); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
	s.EmitStatus(provider.StatusDisabled)
	sub.Remove()
	if n := s.Emit(41, -3); n != 0 {
		t.Errorf("expected no delivery after remove, got %d", n)
	}
	if len(l.samples) != 1 || l.samples[0].Latitude != 40 {
		t.Errorf("unexpected samples %+v", l.samples)
	}
	if len(l.status) != 1 || l.status[0] != provider.StatusDisabled {
		t.Errorf("unexpected status %+v", l.status)
	}
	if s.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", s.Subscribers())
	}
}

func TestUnavailable(t *testing.T) {
	s := New(provider.AuthFine)
	s.SetUnavailable(true)
	if _, err := s.RequestUpdates(location.DefaultPolicy(), &countListener{}); err != ErrUnavailable {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	s := New(provider.AuthNone)
	if s.Authorization().Granted() {
		t.Error("expected no authorization")
	}
	s.SetAuthorization(provider.AuthCoarse)
	if !s.Authorization().Granted() {
		t.Error("expected coarse authorization to be granted")
	}
}
