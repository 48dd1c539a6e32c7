package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nuha.dev/bustracker/internal/events"
	"nuha.dev/bustracker/internal/sink"
)

func TestStatusAndHealth(t *testing.T) {
	m := NewMonApi(&MonitoringConfig{
		Status: func() interface{} { return map[string]string{"state": "running"} },
	})
	ts := httptest.NewServer(m.GetHandler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	err = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if err != nil || body["state"] != "running" {
		t.Errorf("unexpected status body %v, %v", body, err)
	}

	res, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("unexpected health status %d", res.StatusCode)
	}
}

func TestObserveCountsOutcomes(t *testing.T) {
	m := NewMonApi(&MonitoringConfig{})
	m.observe(events.SampleWritten, events.SampleEvent{Latency: 5 * time.Millisecond})
	m.observe(events.SampleWritten, events.SampleEvent{})
	m.observe(events.SampleFailed, events.SampleEvent{})
	m.observe(events.SampleDropped, events.SampleEvent{})
	m.observe(events.ServiceRunning, events.ServiceEvent{State: "running"})

	if v := testutil.ToFloat64(m.metrics.samples.WithLabelValues("written")); v != 2 {
		t.Errorf("written = %v", v)
	}
	if v := testutil.ToFloat64(m.metrics.samples.WithLabelValues("dropped")); v != 1 {
		t.Errorf("dropped = %v", v)
	}
	if v := testutil.ToFloat64(m.metrics.running); v != 1 {
		t.Errorf("running = %v", v)
	}
	m.observe(events.ServiceStopped, events.ServiceEvent{State: "stopped"})
	if v := testutil.ToFloat64(m.metrics.running); v != 0 {
		t.Errorf("running after stop = %v", v)
	}
}

func TestMetricsFromBus(t *testing.T) {
	b, err := events.New(1)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMonApi(&MonitoringConfig{Stats: func() sink.Stats { return sink.Stats{Pending: 3} }})
	m.Attach(b)
	b.Publish(context.Background(), events.SampleWritten, events.SampleEvent{Key: "k"})

	ts := httptest.NewServer(m.GetHandler())
	defer ts.Close()
	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(res.Body)
	res.Body.Close()
	out := string(raw)
	if !strings.Contains(out, `bustracker_samples_total{outcome="written"} 1`) {
		t.Errorf("missing written counter in\n%s", out)
	}
	if !strings.Contains(out, "bustracker_queue_pending 3") {
		t.Errorf("missing queue gauge in\n%s", out)
	}
}
