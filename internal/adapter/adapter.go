// Package adapter is the command surface of the reporting service: it
// remembers the last tracking request and asks a process manager to start
// or stop the service.
package adapter

import (
	"context"
	"sync"

	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/tracking"
)

type ServiceStartError struct {
	Err error
}

func (e *ServiceStartError) Error() string {
	return "unable to start service: " + e.Err.Error()
}

func (e *ServiceStartError) Unwrap() error {
	return e.Err
}

// ProcessManager hosts the reporting service. Start parameters travel as a
// named bundle (see tracking.Request.Params); a nil bundle asks the service
// to reuse the last request it knows.
type ProcessManager interface {
	StartProcess(ctx context.Context, params map[string]string) error
	StopProcess(ctx context.Context) error
}

type Adapter struct {
	mu   sync.Mutex
	log  log.Logger
	pm   ProcessManager
	last *tracking.Request
}

func New(pm ProcessManager) *Adapter {
	a := &Adapter{pm: pm}
	a.log = log.DefaultLogger
	a.log.Context = log.NewContext(nil).Str("module", "adapter").Value()
	return a
}

// Start records req as the last request and starts the service with it.
func (a *Adapter) Start(ctx context.Context, req tracking.Request) error {
	a.mu.Lock()
	a.last = &req
	a.mu.Unlock()

	if err := a.pm.StartProcess(ctx, req.Params()); err != nil {
		a.log.Error().Err(err).EmbedObject(req).Msg("service start failed")
		return &ServiceStartError{Err: err}
	}
	a.log.Info().EmbedObject(req).Msg("service start requested")
	return nil
}

// Restart starts the service without parameters, so it runs with the last
// request it was given.
func (a *Adapter) Restart(ctx context.Context) error {
	if err := a.pm.StartProcess(ctx, nil); err != nil {
		a.log.Error().Err(err).Msg("service restart failed")
		return &ServiceStartError{Err: err}
	}
	a.log.Info().Msg("service restart requested")
	return nil
}

// Stop asks the process manager to stop the service. It never fails; stop
// errors are only logged.
func (a *Adapter) Stop(ctx context.Context) error {
	if err := a.pm.StopProcess(ctx); err != nil {
		a.log.Error().Err(err).Msg("service stop failed")
		return nil
	}
	a.log.Info().Msg("service stop requested")
	return nil
}

// Last returns the request of the most recent Start call.
func (a *Adapter) Last() (tracking.Request, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return tracking.Request{}, false
	}
	return *a.last, true
}
