package adapter

import (
	"context"
	"errors"
	"testing"

	"nuha.dev/bustracker/internal/provider"
	"nuha.dev/bustracker/internal/provider/sim"
	"nuha.dev/bustracker/internal/reporter"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/tracking"
)

type fakeManager struct {
	started  []tracking.Request
	restarts int
	stops    int
	startErr error
	stopErr  error
}

func (m *fakeManager) StartProcess(ctx context.Context, params map[string]string) error {
	if m.startErr != nil {
		return m.startErr
	}
	if params == nil {
		m.restarts++
		return nil
	}
	m.started = append(m.started, tracking.FromParams(params))
	return nil
}

func (m *fakeManager) StopProcess(ctx context.Context) error {
	m.stops++
	return m.stopErr
}

func TestStartStoresRequest(t *testing.T) {
	m := &fakeManager{}
	a := New(m)
	if _, ok := a.Last(); ok {
		t.Error("expected no last request")
	}
	req := tracking.Request{Origin: "A", Destination: "B", Schedule: "08:00", PreOriginCoord: "0,0"}
	if err := a.Start(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	last, ok := a.Last()
	if !ok || last != req {
		t.Errorf("unexpected last request %+v", last)
	}
	if len(m.started) != 1 || m.started[0] != req {
		t.Errorf("unexpected process starts %+v", m.started)
	}
}

func TestStartEmptyFields(t *testing.T) {
	a := New(&fakeManager{})
	_ = a.Start(context.Background(), tracking.FromParams(map[string]string{"origin": "A"}))
	last, _ := a.Last()
	if last.Origin != "A" || last.Destination != "" || last.Schedule != "" || last.PreOriginCoord != "" {
		t.Errorf("unexpected last request %+v", last)
	}
}

func TestStartError(t *testing.T) {
	cause := errors.New("background start not allowed")
	a := New(&fakeManager{startErr: cause})
	err := a.Start(context.Background(), tracking.Request{})
	var startErr *ServiceStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected ServiceStartError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be wrapped")
	}
	if err.Error() != "unable to start service: background start not allowed" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if _, ok := a.Last(); !ok {
		t.Error("request should be stored even when the start fails")
	}
}

func TestStopNeverFails(t *testing.T) {
	m := &fakeManager{stopErr: errors.New("not running")}
	a := New(m)
	if err := a.Stop(context.Background()); err != nil {
		t.Errorf("stop returned %v", err)
	}
	if m.stops != 1 {
		t.Errorf("expected 1 stop, got %d", m.stops)
	}
}

func TestLocalProcess(t *testing.T) {
	p := sim.New(provider.AuthFine)
	lp := NewLocalProcess(nil)
	a := New(lp)
	ctx := context.Background()

	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(ctx, tracking.Request{}); !errors.Is(err, ErrNoService) {
		t.Errorf("expected ErrNoService, got %v", err)
	}

	svc, err := reporter.New(p, discard{}, &reporter.Config{}, reporter.WithFallback(a.Last))
	if err != nil {
		t.Fatal(err)
	}
	lp.Attach(svc)
	req := tracking.Request{Origin: "A", Schedule: "08:00"}
	if err := a.Start(ctx, req); err != nil {
		t.Fatal(err)
	}
	if svc.State() != reporter.Running {
		t.Errorf("expected running, got %v", svc.State())
	}
	if sess, _ := svc.Session(); sess.Request != req {
		t.Errorf("unexpected session request %+v", sess.Request)
	}
	_ = a.Stop(ctx)
	if svc.State() != reporter.Stopped || p.Subscribers() != 0 {
		t.Errorf("service not stopped")
	}
}

func TestRestartUsesLastRequest(t *testing.T) {
	m := &fakeManager{}
	a := New(m)
	ctx := context.Background()
	if err := a.Restart(ctx); err != nil {
		t.Fatal(err)
	}
	if m.restarts != 1 || len(m.started) != 0 {
		t.Errorf("restart should pass no parameters: %+v", m)
	}

	p := sim.New(provider.AuthFine)
	lp := NewLocalProcess(nil)
	a = New(lp)
	svc, err := reporter.New(p, discard{}, &reporter.Config{}, reporter.WithFallback(a.Last))
	if err != nil {
		t.Fatal(err)
	}
	lp.Attach(svc)
	req := tracking.Request{Origin: "A", Destination: "B", Schedule: "08:00", PreOriginCoord: "0,0"}
	_ = a.Start(ctx, req)
	_ = a.Stop(ctx)
	if err := a.Restart(ctx); err != nil {
		t.Fatal(err)
	}
	if svc.State() != reporter.Running {
		t.Errorf("expected running, got %v", svc.State())
	}
	if sess, _ := svc.Session(); sess.Request != req {
		t.Errorf("restart should reuse the last request, got %+v", sess.Request)
	}
}

func TestRestartError(t *testing.T) {
	a := New(&fakeManager{startErr: errors.New("denied")})
	var startErr *ServiceStartError
	if err := a.Restart(context.Background()); !errors.As(err, &startErr) {
		t.Errorf("expected ServiceStartError, got %v", err)
	}
}

type discard struct{}

func (discard) Enqueue(key string, r sink.Record) error {
	return nil
}
