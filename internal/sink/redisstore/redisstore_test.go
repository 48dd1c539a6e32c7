package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"nuha.dev/bustracker/internal/sink"
)

// Runs against a live server when BUSTRACKER_TEST_REDIS holds its address.
func testStore(t *testing.T, channel string) *Store {
	t.Helper()
	addr := os.Getenv("BUSTRACKER_TEST_REDIS")
	if addr == "" {
		t.Skip("BUSTRACKER_TEST_REDIS not set")
	}
	st, err := New(context.Background(), &Config{Addr: addr, Channel: channel, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutGet(t *testing.T) {
	st := testStore(t, "")
	ctx := context.Background()
	key := "bustracker_test/" + time.Now().Format("150405.000")

	if _, err := st.Get(ctx, key); !errors.Is(err, sink.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := st.Put(ctx, key, sink.Record{Latitude: 1.5, Longitude: 2.5, Schedule: "08:00"}); err != nil {
		t.Fatal(err)
	}
	r, err := st.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if r.Latitude != 1.5 || r.Longitude != 2.5 || r.Schedule != "08:00" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestPutPublishes(t *testing.T) {
	st := testStore(t, "bustracker_test_channel")
	ctx := context.Background()
	ps := st.rdb.Subscribe(ctx, "bustracker_test_channel")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	if err := st.Put(ctx, "bustracker_test/pub", sink.Record{Latitude: 3, Longitude: 4}); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-ps.Channel():
		var env sink.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatal(err)
		}
		if env.Key != "bustracker_test/pub" || env.Record.Latitude != 3 {
			t.Errorf("unexpected envelope %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}
