// Package webstream pushes every written location to websocket clients.
// A client sends its token as the first message and is then subscribed to
// all keys; "ADDSUB k1,k2" and "DELSUB k1,k2" change its subscriptions.
package webstream

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mustafaturan/bus/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"nuha.dev/bustracker/internal/events"
)

type WebStreamConfig struct {
	// TokenCheck validates the first message of a client; nil accepts any token.
	TokenCheck   func(token string) bool
	LoginTimeout time.Duration
	QueueSize    int
}

type WebstreamServer struct {
	logger  zerolog.Logger
	config  WebStreamConfig
	subs    *SublistMap
	clients int32
}

func NewWebstream(config WebStreamConfig) *WebstreamServer {
	o := &WebstreamServer{config: config}
	if o.config.LoginTimeout <= 0 {
		o.config.LoginTimeout = 5 * time.Second
	}
	if o.config.QueueSize <= 0 {
		o.config.QueueSize = 16
	}
	o.logger = log.With().Str("module", "websocket").Logger()
	o.subs = NewSublistMap()
	return o
}

// Attach feeds the stream from sample.written events.
func (ws *WebstreamServer) Attach(b *events.Bus) {
	b.Subscribe("webstream", "^"+strings.ReplaceAll(events.SampleWritten, ".", `\.`)+"$", func(ctx context.Context, e bus.Event) {
		ev, ok := e.Data.(events.SampleEvent)
		if !ok {
			return
		}
		ws.Send(ev.Key, ev.Record.Latitude, ev.Record.Longitude, ev.At)
	})
}

func (ws *WebstreamServer) Send(key string, lat, lon float64, t time.Time) {
	ws.subs.Send(key, lat, lon, t)
}

func (ws *WebstreamServer) Clients() int {
	return int(atomic.LoadInt32(&ws.clients))
}

func (ws *WebstreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		ws.logger.Err(err).Msg("Error while upgrading websocket")
		return
	}
	defer c.Close(websocket.StatusInternalError, "unhandled error")

	readCtx, cancel := context.WithTimeout(r.Context(), ws.config.LoginTimeout)
	_, msg, err := c.Read(readCtx)
	cancel()
	if err != nil {
		ws.logger.Err(err).Msg("Error while reading auth token")
		return
	}
	if ws.config.TokenCheck != nil && !ws.config.TokenCheck(string(msg)) {
		ws.logger.Info().Msg("websocket token rejected")
		c.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}
	ws.logger.Info().Msg("websocket token accepted")

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	wc := &WebstreamClient{srv: ws, c: c, logger: ws.logger, wch: make(chan []byte, ws.config.QueueSize), done: ctx.Done()}
	defer ws.subs.Unsubscribe(wc)
	all, _ := ws.subs.GetSublist(AllKeys, true)
	all.Subscribe(wc)
	atomic.AddInt32(&ws.clients, 1)
	defer atomic.AddInt32(&ws.clients, -1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		wc.readloop(ctx)
	}()
	wc.writeLoop(ctx)
	stop()
	wg.Wait()
	c.Close(websocket.StatusNormalClosure, "")
}

type WebstreamClient struct {
	srv     *WebstreamServer
	c       *websocket.Conn
	logger  zerolog.Logger
	wch     chan []byte
	done    <-chan struct{}
	dropped uint64
}

func (wc *WebstreamClient) readloop(ctx context.Context) {
	for {
		_, msg, err := wc.c.Read(ctx)
		if err != nil {
			wc.logger.Debug().Err(err).Msg("websocket read closed")
			return
		}
		cmd := string(msg)
		if len(cmd) < 7 {
			continue
		}
		keys := strings.Split(cmd[7:], ",")
		switch cmd[:6] {
		case "ADDSUB":
			wc.logger.Debug().Strs("addsub", keys).Msg("receive add subscription message")
			for _, k := range keys {
				if k = strings.TrimSpace(k); k != "" {
					l, _ := wc.srv.subs.GetSublist(k, true)
					l.Subscribe(wc)
				}
			}
		case "DELSUB":
			wc.logger.Debug().Strs("delsub", keys).Msg("receive delete subscription message")
			for _, k := range keys {
				if l, ok := wc.srv.subs.GetSublist(strings.TrimSpace(k), false); ok {
					l.Unsubscribe(wc)
				}
			}
		}
	}
}

func (wc *WebstreamClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-wc.wch:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wc.c.Write(wctx, websocket.MessageBinary, d)
			cancel()
			if err != nil {
				wc.logger.Err(err).Msg("Error while writing to connection")
				return
			}
		}
	}
}

func (wc *WebstreamClient) Push(key string, data []byte) bool {
	select {
	case <-wc.done:
		return true
	default:
	}
	select {
	case wc.wch <- data:
	default:
		atomic.AddUint64(&wc.dropped, 1)
		wc.logger.Debug().Str("key", key).Msg("client queue full, dropping location")
	}
	return false
}
