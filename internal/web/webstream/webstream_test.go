package webstream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestEncodeDecode(t *testing.T) {
	now := time.UnixMilli(1700000000123).UTC()
	b := encode_location("location/08:00", 40, -3, now)
	l, err := DecodeLocation(b)
	if err != nil {
		t.Fatal(err)
	}
	if l.Key != "location/08:00" || l.Latitude != 40 || l.Longitude != -3 || !l.ServerTime.Equal(now) {
		t.Errorf("unexpected location %+v", l)
	}
	if _, err := DecodeLocation(b[:len(b)-1]); err == nil {
		t.Error("expected error for a short frame")
	}
}

type chanSub struct {
	ch     chan []byte
	closed bool
}

func (c *chanSub) Push(key string, data []byte) bool {
	if c.closed {
		return true
	}
	c.ch <- data
	return false
}

func TestSublistReplayAndPrune(t *testing.T) {
	m := NewSublistMap()
	l, _ := m.GetSublist("k", true)
	m.Send("k", 1, 2, time.Now())
	sub := &chanSub{ch: make(chan []byte, 4)}
	l.Subscribe(sub)
	if len(sub.ch) != 1 {
		t.Fatalf("expected replay of the last location, got %d", len(sub.ch))
	}
	sub.closed = true
	m.Send("k", 3, 4, time.Now())
	if l.Len() != 0 {
		t.Errorf("closed subscriber should be pruned")
	}
}

func TestSendReachesSubscriberOnce(t *testing.T) {
	m := NewSublistMap()
	sub := &chanSub{ch: make(chan []byte, 4)}
	all, _ := m.GetSublist(AllKeys, true)
	all.Subscribe(sub)
	l, _ := m.GetSublist("location_test", true)
	l.Subscribe(sub)

	m.Send("location_test", 40, -3, time.Now())
	if len(sub.ch) != 1 {
		t.Errorf("expected one push per write, got %d", len(sub.ch))
	}
	m.Send("other", 1, 1, time.Now())
	if len(sub.ch) != 2 {
		t.Errorf("expected the all-keys push, got %d", len(sub.ch))
	}
}

func TestSendDoesNotCreateKeyLists(t *testing.T) {
	m := NewSublistMap()
	for i := 0; i < 3; i++ {
		m.Send("location_test/s"+string(rune('a'+i)), 1, 2, time.Now())
	}
	if _, ok := m.GetSublist("location_test/sa", false); ok {
		t.Error("send should not create per-key lists")
	}
	if _, ok := m.GetSublist(AllKeys, false); !ok {
		t.Error("all-keys list should exist")
	}
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func waitClients(t *testing.T, ws *WebstreamServer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ws.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, ws.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream(t *testing.T) {
	ws := NewWebstream(WebStreamConfig{TokenCheck: func(tok string) bool { return tok == "secret" }})
	srv := httptest.NewServer(ws)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")
	if err := c.Write(ctx, websocket.MessageText, []byte("secret")); err != nil {
		t.Fatal(err)
	}
	waitClients(t, ws, 1)

	ws.Send("location_test", 40, -3, time.Now())
	typ, b, err := c.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.MessageBinary {
		t.Errorf("unexpected message type %v", typ)
	}
	l, err := DecodeLocation(b)
	if err != nil {
		t.Fatal(err)
	}
	if l.Key != "location_test" || l.Latitude != 40 || l.Longitude != -3 {
		t.Errorf("unexpected location %+v", l)
	}
}

func TestStreamRejectsToken(t *testing.T) {
	ws := NewWebstream(WebStreamConfig{TokenCheck: func(tok string) bool { return false }})
	srv := httptest.NewServer(ws)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")
	_ = c.Write(ctx, websocket.MessageText, []byte("wrong"))
	_, _, err = c.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("expected policy violation, got %v", err)
	}
}
