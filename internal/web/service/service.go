// Package service holds the functions served on /func/{name}.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/reporter"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/tracking"
	"nuha.dev/bustracker/internal/web/common"
)

const DefaultStaleAfter = 2 * time.Hour

type Commander interface {
	Start(ctx context.Context, req tracking.Request) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StatusSource interface {
	Status() reporter.Status
}

type Config struct {
	// KeyFor maps a schedule to the key its records are written under.
	KeyFor func(schedule string) string
	// KeyForSession maps a session id to its record key; nil when records
	// are not keyed by session.
	KeyForSession func(id string) (string, error)
	DefaultKey    string
	StaleAfter time.Duration
}

type ServiceApi struct {
	cmd    Commander
	status StatusSource
	store  sink.Getter
	stats  func() sink.Stats
	config Config
	log    log.Logger
}

// New builds the function set. store and stats may be nil when the sink
// cannot be read back or no writer is attached.
func New(cmd Commander, status StatusSource, store sink.Getter, stats func() sink.Stats, config *Config) *ServiceApi {
	s := &ServiceApi{cmd: cmd, status: status, store: store, stats: stats}
	if config != nil {
		s.config = *config
	}
	if s.config.StaleAfter <= 0 {
		s.config.StaleAfter = DefaultStaleAfter
	}
	if s.config.DefaultKey == "" {
		s.config.DefaultKey = reporter.DefaultPath
	}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "service-api").Value()
	return s
}

func (s *ServiceApi) StartService(ctx context.Context, req *tracking.Request, res *common.BasicResponse) error {
	if err := s.cmd.Start(ctx, *req); err != nil {
		res.Fail(err)
		return nil
	}
	res.Status = 0
	return nil
}

// RestartService starts the service again with its last request.
func (s *ServiceApi) RestartService(ctx context.Context, res *common.BasicResponse) error {
	if err := s.cmd.Restart(ctx); err != nil {
		res.Fail(err)
		return nil
	}
	res.Status = 0
	return nil
}

func (s *ServiceApi) StopService(ctx context.Context, res *common.BasicResponse) error {
	_ = s.cmd.Stop(ctx)
	res.Status = 0
	return nil
}

type StatusResponse struct {
	reporter.Status
	Writes *sink.Stats `json:"writes,omitempty"`
}

func (s *ServiceApi) GetStatus(ctx context.Context, res *StatusResponse) error {
	res.Status = s.status.Status()
	if s.stats != nil {
		stats := s.stats()
		res.Writes = &stats
	}
	return nil
}

type GetLocationRequest struct {
	Key      string `json:"key" validate:"max=1024"`
	Session  string `json:"session" validate:"max=64"`
	Schedule string `json:"schedule" validate:"max=1024"`
}

type LocationResponse struct {
	common.BasicResponse
	Key       string     `json:"key,omitempty"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lng"`
	Date      *time.Time `json:"date,omitempty"`
	Schedule  string     `json:"schedule,omitempty"`
	Stale     bool       `json:"stale,omitempty"`
}

func (s *ServiceApi) key(req *GetLocationRequest) (string, error) {
	if req.Key != "" {
		return req.Key, nil
	}
	if req.Session != "" {
		if s.config.KeyForSession == nil {
			return "", errors.New("records are not keyed by session")
		}
		return s.config.KeyForSession(req.Session)
	}
	if req.Schedule != "" && s.config.KeyFor != nil {
		return s.config.KeyFor(req.Schedule), nil
	}
	if st := s.status.Status(); st.Session != nil && st.Session.Key != "" {
		return st.Session.Key, nil
	}
	return s.config.DefaultKey, nil
}

// GetLocation reads back the last record of a key. Records dated more than
// StaleAfter ago are refused; undated records count as fresh.
func (s *ServiceApi) GetLocation(ctx context.Context, req *GetLocationRequest, res *LocationResponse) error {
	key, err := s.key(req)
	if err != nil {
		res.Fail(err)
		return nil
	}
	res.Key = key
	if s.store == nil {
		res.Fail(errors.New("location store is not readable"))
		return nil
	}
	rec, err := s.store.Get(ctx, res.Key)
	if errors.Is(err, sink.ErrNotFound) {
		res.Fail(fmt.Errorf("no location for %s", res.Key))
		return nil
	}
	if err != nil {
		return err
	}
	res.Latitude = rec.Latitude
	res.Longitude = rec.Longitude
	res.Date = rec.Date
	res.Schedule = rec.Schedule
	if res.Schedule == "" {
		res.Schedule = req.Schedule
	}
	if rec.Date != nil && time.Since(*rec.Date) > s.config.StaleAfter {
		res.Stale = true
		res.Fail(fmt.Errorf("location is older than %s", s.config.StaleAfter))
		return nil
	}
	res.Status = 0
	return nil
}
