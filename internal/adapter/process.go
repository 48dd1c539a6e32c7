package adapter

import (
	"context"
	"errors"
	"sync"

	"nuha.dev/bustracker/internal/reporter"
	"nuha.dev/bustracker/internal/tracking"
)

var ErrNoService = errors.New("no service attached")

// Service is the part of reporter.Service driven by LocalProcess.
type Service interface {
	Start(ctx context.Context, req *tracking.Request) error
	Stop(ctx context.Context) error
	State() reporter.State
}

// LocalProcess runs the reporting service inside this process. A start
// while the service runs is delivered to it again, like a second start
// command to a running OS service.
type LocalProcess struct {
	mu  sync.Mutex
	svc Service
}

func NewLocalProcess(svc Service) *LocalProcess {
	return &LocalProcess{svc: svc}
}

// Attach sets the hosted service. It lets the service be built after the
// adapter, since the service reads the adapter's last request.
func (p *LocalProcess) Attach(svc Service) {
	p.mu.Lock()
	p.svc = svc
	p.mu.Unlock()
}

func (p *LocalProcess) service() Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.svc
}

func (p *LocalProcess) StartProcess(ctx context.Context, params map[string]string) error {
	svc := p.service()
	if svc == nil {
		return ErrNoService
	}
	if params == nil {
		return svc.Start(ctx, nil)
	}
	req := tracking.FromParams(params)
	return svc.Start(ctx, &req)
}

func (p *LocalProcess) StopProcess(ctx context.Context) error {
	svc := p.service()
	if svc == nil {
		return nil
	}
	return svc.Stop(ctx)
}
