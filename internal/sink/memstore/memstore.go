// Package memstore is a map backed sink. It is the default driver and the
// one used by tests.
package memstore

import (
	"context"
	"sync"

	"nuha.dev/bustracker/internal/sink"
)

type Put struct {
	Key    string
	Record sink.Record
}

type Store struct {
	mu      sync.Mutex
	records map[string]sink.Record
	puts    []Put
	err     error
	closed  bool
}

func New() *Store {
	return &Store{records: make(map[string]sink.Record)}
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return sink.ErrClosed
	}
	if st.err != nil {
		return st.err
	}
	st.records[key] = r
	st.puts = append(st.puts, Put{Key: key, Record: r})
	return nil
}

func (st *Store) Get(ctx context.Context, key string) (sink.Record, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.records[key]
	if !ok {
		return sink.Record{}, sink.ErrNotFound
	}
	return r, nil
}

// Puts returns every accepted write in order.
func (st *Store) Puts() []Put {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Put, len(st.puts))
	copy(out, st.puts)
	return out
}

// FailWith makes every following Put return err; nil restores normal writes.
func (st *Store) FailWith(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}

func (st *Store) Close() error {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
	return nil
}
