package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
)

const (
	DefaultQueueSize    = 64
	DefaultWorkers      = 1
	DefaultWriteTimeout = 10 * time.Second
)

type Outcome string

const (
	Written Outcome = "written"
	Failed  Outcome = "failed"
	Dropped Outcome = "dropped"
)

type Result struct {
	Key     string
	Record  Record
	Outcome Outcome
	Err     error
	Latency time.Duration
}

// Observer is called once for every enqueue attempt, from the goroutine
// that decided the outcome.
type Observer func(Result)

type WriterConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Written  uint64 `json:"written"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Pending  int    `json:"pending"`
}

type job struct {
	key string
	rec Record
}

// Writer is a bounded asynchronous write queue in front of a Sink. Writes are
// fire-and-forget: Enqueue never blocks and failures are only reported
// through Stats and the Observer.
type Writer struct {
	sink     Sink
	config   WriterConfig
	observer Observer
	log      log.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan job
	wg     sync.WaitGroup

	enqueued uint64
	written  uint64
	failed   uint64
	dropped  uint64
}

func NewWriter(s Sink, config *WriterConfig, observer Observer) *Writer {
	w := &Writer{sink: s, observer: observer}
	if config != nil {
		w.config = *config
	}
	if w.config.QueueSize <= 0 {
		w.config.QueueSize = DefaultQueueSize
	}
	if w.config.Workers <= 0 {
		w.config.Workers = DefaultWorkers
	}
	if w.config.WriteTimeout <= 0 {
		w.config.WriteTimeout = DefaultWriteTimeout
	}
	w.log = log.DefaultLogger
	w.log.Context = log.NewContext(nil).Str("module", "sink-writer").Value()
	w.ch = make(chan job, w.config.QueueSize)
	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	return w
}

func (w *Writer) Enqueue(key string, r Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.ch <- job{key: key, rec: r}:
		atomic.AddUint64(&w.enqueued, 1)
		return nil
	default:
		atomic.AddUint64(&w.dropped, 1)
		w.log.Warn().Str("key", key).EmbedObject(r).Msg("write queue full, dropping record")
		w.notify(Result{Key: key, Record: r, Outcome: Dropped, Err: ErrQueueFull})
		return ErrQueueFull
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for j := range w.ch {
		w.write(j)
	}
}

func (w *Writer) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()
	t0 := time.Now()
	err := w.sink.Put(ctx, j.key, j.rec)
	res := Result{Key: j.key, Record: j.rec, Err: err, Latency: time.Since(t0)}
	if err != nil {
		atomic.AddUint64(&w.failed, 1)
		res.Outcome = Failed
		w.log.Error().Err(err).Str("key", j.key).EmbedObject(j.rec).Msg("sink write failed")
	} else {
		atomic.AddUint64(&w.written, 1)
		res.Outcome = Written
		w.log.Debug().Str("key", j.key).EmbedObject(j.rec).Dur("time_taken", res.Latency).Msg("sink write")
	}
	w.notify(res)
}

func (w *Writer) notify(r Result) {
	if w.observer != nil {
		w.observer(r)
	}
}

func (w *Writer) Stats() Stats {
	return Stats{
		Enqueued: atomic.LoadUint64(&w.enqueued),
		Written:  atomic.LoadUint64(&w.written),
		Failed:   atomic.LoadUint64(&w.failed),
		Dropped:  atomic.LoadUint64(&w.dropped),
		Pending:  len(w.ch),
	}
}

// Close stops accepting writes and waits for the queue to drain or ctx to
// expire. The underlying sink is closed once the workers are done.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return w.sink.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
