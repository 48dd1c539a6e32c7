package provider

import (
	"sync"
	"testing"

	"nuha.dev/bustracker/internal/location"
)

type mockListener struct {
	mu      sync.Mutex
	samples []location.Sample
	status  []Status
}

func (m *mockListener) OnLocation(s location.Sample) {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
}

func (m *mockListener) OnProviderStatus(st Status) {
	m.mu.Lock()
	m.status = append(m.status, st)
	m.mu.Unlock()
}

func TestHubDeliver(t *testing.T) {
	h := NewHub()
	l := &mockListener{}
	h.Add(location.Policy{}, l)
	for i := 0; i < 3; i++ {
		h.Deliver(location.Sample{Latitude: float64(i), Longitude: 1})
	}
	if len(l.samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(l.samples))
	}
	if l.samples[2].Latitude != 2 {
		t.Errorf("unexpected sample %+v", l.samples[2])
	}
}

func TestHubRemoveIsIdempotent(t *testing.T) {
	h := NewHub()
	l := &mockListener{}
	s := h.Add(location.Policy{}, l)
	s.Remove()
	s.Remove()
	if h.Len() != 0 {
		t.Errorf("expected empty hub, got %d", h.Len())
	}
	if n := h.Deliver(location.Sample{}); n != 0 {
		t.Errorf("removed subscription received %d samples", n)
	}
}

func TestHubAppliesPolicy(t *testing.T) {
	h := NewHub()
	l := &mockListener{}
	h.Add(location.DefaultPolicy(), l)
	s := location.Sample{Latitude: 1, Longitude: 1}
	h.Deliver(s)
	h.Deliver(s)
	if len(l.samples) != 1 {
		t.Errorf("expected duplicate to be held back, got %d samples", len(l.samples))
	}
}

func TestHubStatus(t *testing.T) {
	h := NewHub()
	l := &mockListener{}
	h.Add(location.Policy{}, l)
	h.Status(StatusDisabled)
	if len(l.status) != 1 || l.status[0] != StatusDisabled {
		t.Errorf("unexpected status %v", l.status)
	}
}

func TestHubReenableResetsGate(t *testing.T) {
	h := NewHub()
	l := &mockListener{}
	h.Add(location.DefaultPolicy(), l)
	s := location.Sample{Latitude: 1, Longitude: 1}

	h.Status(StatusEnabled)
	h.Deliver(s)
	h.Status(StatusEnabled)
	h.Deliver(s)
	if len(l.samples) != 1 {
		t.Fatalf("repeated enabled status should not reset the gate, got %d samples", len(l.samples))
	}
	h.Status(StatusDisabled)
	h.Status(StatusEnabled)
	h.Deliver(s)
	if len(l.samples) != 2 {
		t.Errorf("expected the first fix after re-enable, got %d samples", len(l.samples))
	}
}

func TestParseAuthorization(t *testing.T) {
	cases := map[string]Authorization{"fine": AuthFine, " Coarse ": AuthCoarse, "none": AuthNone, "": AuthNone}
	for in, want := range cases {
		if got := ParseAuthorization(in); got != want {
			t.Errorf("%q: got %v want %v", in, got, want)
		}
	}
	if AuthNone.Granted() || !AuthCoarse.Granted() || !AuthFine.Granted() {
		t.Error("unexpected Granted result")
	}
}
