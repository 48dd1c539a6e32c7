// Package sink writes location records to a realtime datastore. Every write
// for a key overwrites the previous record; there is no history.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"
)

var (
	ErrQueueFull = errors.New("sink: write queue full")
	ErrClosed    = errors.New("sink: closed")
	ErrNotFound  = errors.New("sink: record not found")
)

// Record is the payload stored under a key. The session fields are only set
// when records are keyed per schedule or per session.
type Record struct {
	Latitude       float64    `json:"latitude" dynamodbav:"latitude"`
	Longitude      float64    `json:"longitude" dynamodbav:"longitude"`
	Origin         string     `json:"origin,omitempty" dynamodbav:"origin,omitempty"`
	Destination    string     `json:"destination,omitempty" dynamodbav:"destination,omitempty"`
	Schedule       string     `json:"schedule,omitempty" dynamodbav:"schedule,omitempty"`
	PreOriginCoord string     `json:"preOriginCoord,omitempty" dynamodbav:"pre_origin_coord,omitempty"`
	Session        string     `json:"session,omitempty" dynamodbav:"session,omitempty"`
	Date           *time.Time `json:"date,omitempty" dynamodbav:"date,omitempty"`
}

func (r Record) MarshalObject(e *log.Entry) {
	e.Float64("latitude", r.Latitude).Float64("longitude", r.Longitude)
	if r.Session != "" {
		e.Str("session", r.Session)
	}
}

type Sink interface {
	Put(ctx context.Context, key string, r Record) error
	Close() error
}

// Getter is implemented by sinks that can read back the last record.
type Getter interface {
	Get(ctx context.Context, key string) (Record, error)
}

// Envelope is the message form of a write, used by the sinks that publish
// records instead of storing them.
type Envelope struct {
	Key    string    `json:"key"`
	Record Record    `json:"record"`
	Time   time.Time `json:"time"`
}

func NewEnvelope(key string, r Record) Envelope {
	return Envelope{Key: key, Record: r, Time: time.Now().UTC()}
}
