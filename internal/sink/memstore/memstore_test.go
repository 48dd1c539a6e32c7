package memstore

import (
	"context"
	"errors"
	"testing"

	"nuha.dev/bustracker/internal/sink"
)

func TestLastWriteWins(t *testing.T) {
	st := New()
	ctx := context.Background()
	_ = st.Put(ctx, "location_test", sink.Record{Latitude: 1, Longitude: 1})
	_ = st.Put(ctx, "location_test", sink.Record{Latitude: 40, Longitude: -3})
	r, err := st.Get(ctx, "location_test")
	if err != nil {
		t.Fatal(err)
	}
	if r.Latitude != 40 || r.Longitude != -3 {
		t.Errorf("unexpected record %+v", r)
	}
	if len(st.Puts()) != 2 {
		t.Errorf("expected 2 writes, got %d", len(st.Puts()))
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := New().Get(context.Background(), "nope"); !errors.Is(err, sink.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutAfterClose(t *testing.T) {
	st := New()
	_ = st.Close()
	if err := st.Put(context.Background(), "k", sink.Record{}); !errors.Is(err, sink.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
