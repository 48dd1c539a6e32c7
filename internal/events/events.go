// Package events is the in-process event bus. The reporter publishes its
// lifecycle and the sink writer its write outcomes; metrics and the live
// stream consume them.
package events

import (
	"context"
	"time"

	"github.com/mustafaturan/bus/v3"
	"github.com/mustafaturan/monoton/v2"
	"github.com/mustafaturan/monoton/v2/sequencer"
	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/sink"
)

const (
	ServiceStarting = "service.starting"
	ServiceRunning  = "service.running"
	ServiceStopped  = "service.stopped"
	SampleWritten   = "sample.written"
	SampleFailed    = "sample.failed"
	SampleDropped   = "sample.dropped"
)

var Topics = []string{ServiceStarting, ServiceRunning, ServiceStopped, SampleWritten, SampleFailed, SampleDropped}

// ServiceEvent is the payload of the service.* topics.
type ServiceEvent struct {
	State      string `json:"state"`
	Session    string `json:"session,omitempty"`
	Key        string `json:"key,omitempty"`
	Subscribed bool   `json:"subscribed"`
}

// SampleEvent is the payload of the sample.* topics.
type SampleEvent struct {
	Key     string
	Record  sink.Record
	Err     error
	Latency time.Duration
	At      time.Time
}

// 2020-01-01 UTC in milliseconds
const initialTime = uint64(1577836800000)

type Bus struct {
	b   *bus.Bus
	log log.Logger
}

func New(node uint64) (*Bus, error) {
	m, err := monoton.New(sequencer.NewMillisecond(), node, initialTime)
	if err != nil {
		return nil, err
	}
	var idGenerator bus.Next = m.Next
	b, err := bus.NewBus(idGenerator)
	if err != nil {
		return nil, err
	}
	b.RegisterTopics(Topics...)
	e := &Bus{b: b}
	e.log = log.DefaultLogger
	e.log.Context = log.NewContext(nil).Str("module", "events").Value()
	return e, nil
}

// Publish emits data on topic. Failures are logged, never returned.
func (e *Bus) Publish(ctx context.Context, topic string, data interface{}) {
	if err := e.b.Emit(ctx, topic, data); err != nil {
		e.log.Error().Err(err).Str("topic", topic).Msg("unable to emit event")
	}
}

// Subscribe registers fn under key for every topic matching the matcher
// regular expression.
func (e *Bus) Subscribe(key, matcher string, fn func(ctx context.Context, ev bus.Event)) {
	e.b.RegisterHandler(key, bus.Handler{Handle: fn, Matcher: matcher})
}

func (e *Bus) Unsubscribe(key string) {
	e.b.DeregisterHandler(key)
}

// WriteObserver publishes each sink write outcome on the matching sample.* topic.
func (e *Bus) WriteObserver() sink.Observer {
	return func(r sink.Result) {
		topic := SampleWritten
		switch r.Outcome {
		case sink.Failed:
			topic = SampleFailed
		case sink.Dropped:
			topic = SampleDropped
		}
		e.Publish(context.Background(), topic, SampleEvent{
			Key:     r.Key,
			Record:  r.Record,
			Err:     r.Err,
			Latency: r.Latency,
			At:      time.Now().UTC(),
		})
	}
}
