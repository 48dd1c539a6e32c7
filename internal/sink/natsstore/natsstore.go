// Package natsstore publishes every record on a NATS subject derived from
// its key. Nothing is kept, so the store cannot be read back.
package natsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"nuha.dev/bustracker/internal/sink"
)

const DefaultPrefix = "bustracker"

type Store struct {
	nc     *nats.Conn
	prefix string
}

func Connect(url string, prefix string) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("bustracker"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return New(nc, prefix), nil
}

func New(nc *nats.Conn, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{nc: nc, prefix: prefix}
}

// Subject maps a record key to a subject: "location/A 1" with prefix
// "bustracker" becomes "bustracker.location.A_1".
func Subject(prefix, key string) string {
	key = strings.Trim(key, "/")
	key = strings.NewReplacer("/", ".", " ", "_", "*", "_", ">", "_").Replace(key)
	if key == "" {
		return prefix
	}
	return prefix + "." + key
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	data, err := json.Marshal(sink.NewEnvelope(key, r))
	if err != nil {
		return err
	}
	if err := st.nc.Publish(Subject(st.prefix, key), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", key, err)
	}
	return st.nc.FlushWithContext(ctx)
}

func (st *Store) Close() error {
	return st.nc.Drain()
}
