package location

import (
	"math"
	"testing"
	"time"
)

func TestDistance(t *testing.T) {
	a := Sample{Latitude: 0, Longitude: 0}
	b := Sample{Latitude: 0, Longitude: 1}
	d := Distance(a, b)
	// one degree of longitude on the equator
	if math.Abs(d-111195) > 50 {
		t.Errorf("unexpected distance %f", d)
	}
	if Distance(a, a) != 0 {
		t.Error("distance to self must be zero")
	}
}

func TestParseCoord(t *testing.T) {
	s, err := ParseCoord("-34.6037, -58.3816")
	if err != nil {
		t.Fatal(err)
	}
	if s.Latitude != -34.6037 || s.Longitude != -58.3816 {
		t.Errorf("unexpected sample %+v", s)
	}
	for _, bad := range []string{"", "1", "a,b", "91,0", "0,181"} {
		if _, err := ParseCoord(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestGateFirstSampleAlwaysPasses(t *testing.T) {
	g := NewGate(DefaultPolicy())
	if !g.Allow(Sample{Latitude: 1, Longitude: 1, Time: time.Now()}) {
		t.Error("first sample must pass")
	}
}

func TestGateRequiresBothThresholds(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	g := NewGate(DefaultPolicy())
	g.Allow(Sample{Latitude: 0, Longitude: 0, Time: t0})

	// far enough but too soon
	if g.Allow(Sample{Latitude: 0, Longitude: 0.001, Time: t0.Add(10 * time.Second)}) {
		t.Error("sample before min interval must be held back")
	}
	// late enough but too close (about 1 m)
	if g.Allow(Sample{Latitude: 0, Longitude: 0.00001, Time: t0.Add(31 * time.Second)}) {
		t.Error("sample below min distance must be held back")
	}
	// both satisfied (about 111 m)
	if !g.Allow(Sample{Latitude: 0, Longitude: 0.001, Time: t0.Add(31 * time.Second)}) {
		t.Error("sample meeting both thresholds must pass")
	}
	// the reference moved to the last delivered sample
	if g.Allow(Sample{Latitude: 0, Longitude: 0.001, Time: t0.Add(90 * time.Second)}) {
		t.Error("stationary sample must be held back")
	}
}

func TestGateZeroPolicyPassesEverything(t *testing.T) {
	g := NewGate(Policy{})
	s := Sample{Latitude: 5, Longitude: 5}
	for i := 0; i < 5; i++ {
		if !g.Allow(s) {
			t.Fatalf("sample %d held back by zero policy", i)
		}
	}
}

func TestGateReset(t *testing.T) {
	g := NewGate(DefaultPolicy())
	now := time.Now()
	g.Allow(Sample{Time: now})
	if g.Allow(Sample{Time: now}) {
		t.Fatal("duplicate must be held back")
	}
	g.Reset()
	if !g.Allow(Sample{Time: now}) {
		t.Error("first sample after reset must pass")
	}
}
