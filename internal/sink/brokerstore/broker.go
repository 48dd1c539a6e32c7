// Package brokerstore broadcasts records as newline delimited JSON to every
// TCP client connected to it. Writes are batched and flushed when the batch
// is full or too old; a client that is busy writing misses the batches
// flushed meanwhile.
package brokerstore

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nuha.dev/bustracker/internal/sink"
)

type Config struct {
	Addr     string
	BufSize  int
	TimerDur time.Duration
}

type Broker struct {
	logger zerolog.Logger
	config Config
	rbuf   buffer
	wbuf   buffer
	wlock  *sync.Mutex

	cond   *sync.Cond
	rlock  *sync.RWMutex
	closed bool

	ln          net.Listener
	subscribers int32
}

type buffer struct {
	seq uint64
	t1  time.Time
	t2  time.Time
	buf net.Buffers
}

func new_buffer(seq uint64, len int) buffer {
	return buffer{seq: seq, buf: make(net.Buffers, 0, len)}
}

func New(config *Config) *Broker {
	br := &Broker{}
	br.config = *config
	if br.config.BufSize <= 0 {
		br.config.BufSize = 1
	}
	if br.config.TimerDur <= 0 {
		br.config.TimerDur = 5 * time.Second
	}
	br.logger = log.With().Str("module", "broker").Logger()
	br.rlock = &sync.RWMutex{}
	br.cond = sync.NewCond(br.rlock.RLocker())
	br.wbuf = new_buffer(0, br.config.BufSize)
	br.wlock = &sync.Mutex{}
	return br
}

func (br *Broker) Listen() error {
	ln, err := net.Listen("tcp", br.config.Addr)
	if err != nil {
		br.logger.Err(err).Msg("unable to listen")
		return err
	}
	br.rlock.Lock()
	br.ln = ln
	br.rlock.Unlock()
	return nil
}

func (br *Broker) Addr() net.Addr {
	br.rlock.RLock()
	defer br.rlock.RUnlock()
	if br.ln == nil {
		return nil
	}
	return br.ln.Addr()
}

func (br *Broker) Subscribers() int {
	return int(atomic.LoadInt32(&br.subscribers))
}

// Run accepts subscribers until ctx is done or the broker is closed.
func (br *Broker) Run(ctx context.Context) error {
	if br.Addr() == nil {
		if err := br.Listen(); err != nil {
			return err
		}
	}
	br.rlock.RLock()
	ln := br.ln
	br.rlock.RUnlock()

	go br.timer_flusher(ctx)
	go func() {
		<-ctx.Done()
		_ = br.Close()
	}()
	br.logger.Info().Str("addr", ln.Addr().String()).Msg("accepting subscribers")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if br.isClosed() {
				return nil
			}
			br.logger.Err(err).Msg("failed to accept new connection")
			return err
		}
		bconn := brokerConn{br: br, c: conn, logger: br.logger}
		go bconn.handle()
	}
}

func (br *Broker) isClosed() bool {
	br.rlock.RLock()
	defer br.rlock.RUnlock()
	return br.closed
}

func (br *Broker) timer_flusher(ctx context.Context) {
	ticker := time.NewTicker(br.config.TimerDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			br.wlock.Lock()
			if len(br.wbuf.buf) != 0 && t.Sub(br.wbuf.t1) > br.config.TimerDur {
				br.flush()
			}
			br.wlock.Unlock()
		}
	}
}

func (br *Broker) Broadcast(data []byte) {
	br.wlock.Lock()
	if len(br.wbuf.buf) == 0 {
		br.wbuf.t1 = time.Now()
	}
	br.wbuf.buf = append(br.wbuf.buf, data)
	if len(br.wbuf.buf) >= br.config.BufSize {
		br.flush()
	}
	br.wlock.Unlock()
}

func (br *Broker) flush() {
	next := br.wbuf.seq + 1
	br.wbuf.t2 = time.Now()
	br.rlock.Lock()
	br.rbuf = br.wbuf
	br.rlock.Unlock()
	br.cond.Broadcast()
	br.wbuf = new_buffer(next, br.config.BufSize)
}

func (br *Broker) Put(ctx context.Context, key string, r sink.Record) error {
	if br.isClosed() {
		return sink.ErrClosed
	}
	data, err := json.Marshal(sink.NewEnvelope(key, r))
	if err != nil {
		return err
	}
	br.Broadcast(append(data, '\n'))
	return nil
}

// Close flushes the pending batch, stops accepting and releases subscribers.
func (br *Broker) Close() error {
	br.wlock.Lock()
	if len(br.wbuf.buf) != 0 {
		br.flush()
	}
	br.wlock.Unlock()

	br.rlock.Lock()
	if br.closed {
		br.rlock.Unlock()
		return nil
	}
	br.closed = true
	ln := br.ln
	br.rlock.Unlock()
	br.cond.Broadcast()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

type brokerConn struct {
	br     *Broker
	c      net.Conn
	r      *bufio.Reader
	logger zerolog.Logger
}

func (bc *brokerConn) handle() {
	defer bc.c.Close()
	br := bc.br
	bc.r = bufio.NewReader(bc.c)

	br.cond.L.Lock()
	atomic.AddInt32(&br.subscribers, 1)
	defer atomic.AddInt32(&br.subscribers, -1)
	for {
		if !br.closed {
			br.cond.Wait()
		}
		if br.closed {
			br.cond.L.Unlock()
			return
		}
		// net.Buffers.WriteTo consumes its receiver, so each subscriber writes its own copy
		bufs := append(net.Buffers(nil), br.rbuf.buf...)
		br.cond.L.Unlock()

		_ = bc.c.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := bufs.WriteTo(bc.c); err != nil {
			bc.logger.Err(err).Msg("error writing buffer")
			return
		}
		br.cond.L.Lock()
	}
}
