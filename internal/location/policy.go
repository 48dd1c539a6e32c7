package location

import (
	"sync"
	"time"
)

const (
	DefaultMinInterval = 30 * time.Second
	DefaultMinDistance = 10.0
)

// Policy is the sampling cadence requested from a provider. A sample is
// delivered once both MinInterval has elapsed and MinDistance meters were
// covered since the previously delivered sample.
type Policy struct {
	MinInterval time.Duration `json:"min_interval"`
	MinDistance float64       `json:"min_distance"`
}

func DefaultPolicy() Policy {
	return Policy{MinInterval: DefaultMinInterval, MinDistance: DefaultMinDistance}
}

type Gate struct {
	policy Policy
	mu     sync.Mutex
	last   Sample
	seen   bool
}

func NewGate(p Policy) *Gate {
	return &Gate{policy: p}
}

// Allow reports whether s passes the policy and, if so, records it as the
// last delivered sample. A zero sample time is treated as now.
func (g *Gate) Allow(s Sample) bool {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seen {
		g.last = s
		g.seen = true
		return true
	}
	if s.Time.Sub(g.last.Time) < g.policy.MinInterval {
		return false
	}
	if Distance(g.last, s) < g.policy.MinDistance {
		return false
	}
	g.last = s
	return true
}

func (g *Gate) Reset() {
	g.mu.Lock()
	g.seen = false
	g.last = Sample{}
	g.mu.Unlock()
}
