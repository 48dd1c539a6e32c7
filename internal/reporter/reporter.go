// Package reporter is the background location reporting service. While
// running it holds one provider subscription and turns every delivered
// sample into a sink write.
package reporter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/events"
	"nuha.dev/bustracker/internal/location"
	"nuha.dev/bustracker/internal/notify"
	"nuha.dev/bustracker/internal/provider"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/tracking"
	"nuha.dev/bustracker/internal/util"
)

var ErrClosed = errors.New("reporter: service closed")

type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Enqueuer accepts sink writes without blocking; see sink.Writer.
type Enqueuer interface {
	Enqueue(key string, r sink.Record) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, data interface{})
}

type Config struct {
	Path     string
	KeyMode  KeyMode
	HashSalt string
	// Policy defaults to location.DefaultPolicy when left zero.
	Policy location.Policy
	// Unthrottled delivers every provider sample and ignores Policy.
	Unthrottled bool
}

type Session struct {
	ID      string           `json:"id"`
	Seq     uint64           `json:"seq"`
	Key     string           `json:"key"`
	Started time.Time        `json:"started"`
	Request tracking.Request `json:"request"`
	// PreOrigin is Request.PreOriginCoord when it holds a "lat,lng" pair.
	PreOrigin *location.Sample `json:"pre_origin,omitempty"`
}

func (s *Session) MarshalObject(e *log.Entry) {
	e.Str("session", s.ID).Str("key", s.Key)
}

type Status struct {
	State          string           `json:"state"`
	Provider       string           `json:"provider"`
	ProviderStatus provider.Status  `json:"provider_status,omitempty"`
	Authorized     bool             `json:"authorized"`
	Subscribed     bool             `json:"subscribed"`
	Session        *Session         `json:"session,omitempty"`
	Samples        uint64           `json:"samples"`
	Rejected       uint64           `json:"rejected"`
	LastSample     *location.Sample `json:"last_sample,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
}

type Option func(*Service)

// WithFallback supplies the request used when a start command carries none.
func WithFallback(f func() (tracking.Request, bool)) Option {
	return func(s *Service) {
		s.fallback = f
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.pub = p
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

type Service struct {
	mu       sync.Mutex
	log      log.Logger
	config   Config
	provider provider.Provider
	writer   Enqueuer
	keyer    *Keyer
	notifier notify.Notifier
	pub      Publisher
	fallback func() (tracking.Request, bool)

	state      State
	closed     bool
	seq        uint64
	sub        provider.Subscription
	session    *Session
	provStatus provider.Status
	lastSample *location.Sample
	lastErr    string

	samples  uint64
	rejected uint64
}

func New(p provider.Provider, w Enqueuer, config *Config, opts ...Option) (*Service, error) {
	s := &Service{provider: p, writer: w}
	if config != nil {
		s.config = *config
	}
	switch {
	case s.config.Unthrottled:
		s.config.Policy = location.Policy{}
	case s.config.Policy == (location.Policy{}):
		s.config.Policy = location.DefaultPolicy()
	}
	keyer, err := NewKeyer(s.config.Path, s.config.KeyMode, s.config.HashSalt)
	if err != nil {
		return nil, err
	}
	s.keyer = keyer
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "reporter").Value()
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	return s, nil
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:          s.state.String(),
		Provider:       s.provider.Name(),
		ProviderStatus: s.provStatus,
		Authorized:     s.provider.Authorization().Granted(),
		Subscribed:     s.sub != nil,
		Samples:        atomic.LoadUint64(&s.samples),
		Rejected:       atomic.LoadUint64(&s.rejected),
		LastError:      s.lastErr,
	}
	if s.session != nil {
		sess := *s.session
		st.Session = &sess
	}
	if s.lastSample != nil {
		sample := *s.lastSample
		st.LastSample = &sample
	}
	return st
}

func (s *Service) resolve(req *tracking.Request) tracking.Request {
	if req != nil {
		return *req
	}
	if s.fallback != nil {
		if r, ok := s.fallback(); ok {
			s.log.Info().EmbedObject(r).Msg("no start parameters, using last request")
			return r
		}
	}
	return tracking.Request{}
}

// Start moves the service to Running for req. A nil req falls back to the
// last known request. Starting a running service replaces its session and
// subscription.
func (s *Service) Start(ctx context.Context, req *tracking.Request) error {
	r := s.resolve(req)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	key, err := s.keyer.Key(r, s.seq+1)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.seq++
	sess := &Session{ID: util.GenUUID(), Seq: s.seq, Key: key, Started: time.Now().UTC(), Request: r}
	if r.PreOriginCoord != "" {
		if c, err := location.ParseCoord(r.PreOriginCoord); err == nil {
			sess.PreOrigin = &c
		} else {
			s.log.Warn().Str("pre_origin_coord", r.PreOriginCoord).Msg("pre-origin coordinate is not a lat,lng pair, keeping it as text")
		}
	}
	old := s.sub
	s.sub = nil
	s.session = sess
	s.state = Starting
	s.lastErr = ""
	s.mu.Unlock()

	if old != nil {
		old.Remove()
		s.log.Info().EmbedObject(sess).Msg("replacing running session")
	}
	s.log.Info().EmbedObject(sess).EmbedObject(r).Msg("starting")
	s.publish(ctx, events.ServiceStarting, sess, false)

	if err := s.notifier.Show(ctx, notify.Tracking()); err != nil {
		s.log.Error().Err(err).Msg("unable to show notification")
	}

	var sub provider.Subscription
	auth := s.provider.Authorization()
	if auth.Granted() {
		sub, err = s.provider.RequestUpdates(s.config.Policy, &listener{s: s, sess: sess})
		if err != nil {
			s.log.Error().Err(err).Str("provider", s.provider.Name()).Msg("unable to request location updates")
			s.setError(err)
		}
	} else {
		s.log.Warn().Str("provider", s.provider.Name()).Str("authorization", auth.String()).Msg("location permission missing, no updates will be reported")
	}

	s.mu.Lock()
	if s.session != sess || s.state != Starting {
		stopped := s.state == Stopped
		s.mu.Unlock()
		if sub != nil {
			sub.Remove()
		}
		// a Stop ran while starting; it may have cancelled before our Show
		if stopped {
			if err := s.notifier.Cancel(ctx, notify.Tracking().ID); err != nil {
				s.log.Error().Err(err).Msg("unable to cancel notification")
			}
		}
		return nil
	}
	s.sub = sub
	s.state = Running
	s.mu.Unlock()

	s.publish(ctx, events.ServiceRunning, sess, sub != nil)
	return nil
}

// Stop removes the subscription and cancels the notification. Stopping a
// stopped service does nothing.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return nil
	}
	sub := s.sub
	sess := s.session
	s.sub = nil
	s.state = Stopped
	s.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	if err := s.notifier.Cancel(ctx, notify.Tracking().ID); err != nil {
		s.log.Error().Err(err).Msg("unable to cancel notification")
	}
	s.log.Info().EmbedObject(sess).Msg("stopped")
	s.publish(ctx, events.ServiceStopped, sess, false)
	return nil
}

// Close stops the service for good; later starts return ErrClosed.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop(ctx)
}

func (s *Service) publish(ctx context.Context, topic string, sess *Session, subscribed bool) {
	if s.pub == nil {
		return
	}
	ev := events.ServiceEvent{State: s.State().String(), Subscribed: subscribed}
	if sess != nil {
		ev.Session = sess.ID
		ev.Key = sess.Key
	}
	s.pub.Publish(ctx, topic, ev)
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *Service) record(sess *Session, sample location.Sample) sink.Record {
	rec := sink.Record{Latitude: sample.Latitude, Longitude: sample.Longitude}
	if s.keyer.Mode() == KeyFixed {
		return rec
	}
	rec.Origin = sess.Request.Origin
	rec.Destination = sess.Request.Destination
	rec.Schedule = sess.Request.Schedule
	rec.PreOriginCoord = sess.Request.PreOriginCoord
	rec.Session = sess.ID
	date := sample.Time
	if date.IsZero() {
		date = time.Now()
	}
	date = date.UTC()
	rec.Date = &date
	return rec
}

func (s *Service) onLocation(sess *Session, sample location.Sample) {
	s.mu.Lock()
	if s.state != Running || s.session != sess {
		s.mu.Unlock()
		s.log.Debug().EmbedObject(sample).Msg("ignoring sample outside running session")
		return
	}
	s.lastSample = &sample
	s.mu.Unlock()

	atomic.AddUint64(&s.samples, 1)
	if err := s.writer.Enqueue(sess.Key, s.record(sess, sample)); err != nil {
		atomic.AddUint64(&s.rejected, 1)
		s.log.Error().Err(err).EmbedObject(sess).EmbedObject(sample).Msg("unable to queue location write")
	}
}

func (s *Service) onProviderStatus(sess *Session, st provider.Status) {
	s.mu.Lock()
	current := s.session == sess
	if current {
		s.provStatus = st
	}
	s.mu.Unlock()
	if current {
		s.log.Info().Str("provider", s.provider.Name()).Str("status", string(st)).Msg("provider status changed")
	}
}

// listener binds provider callbacks to the session that requested them, so
// callbacks of a replaced or stopped session are dropped.
type listener struct {
	s    *Service
	sess *Session
}

func (l *listener) OnLocation(sample location.Sample) {
	l.s.onLocation(l.sess, sample)
}

func (l *listener) OnProviderStatus(st provider.Status) {
	l.s.onProviderStatus(l.sess, st)
}
