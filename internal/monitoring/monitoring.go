// Package monitoring serves the operator endpoints: a JSON status snapshot,
// prometheus metrics fed from the event bus, and a health probe.
package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/mustafaturan/bus/v3"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nuha.dev/bustracker/internal/events"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/util"
)

type MonitoringConfig struct {
	ListenAddr string
	// Status returns the snapshot served on "/".
	Status func() interface{}
	// Stats feeds the queue gauges; optional.
	Stats func() sink.Stats
}

type metrics struct {
	samples     *prometheus.CounterVec
	latency     prometheus.Histogram
	transitions *prometheus.CounterVec
	running     prometheus.Gauge
}

type MonitoringServer struct {
	log      log.Logger
	config   *MonitoringConfig
	registry *prometheus.Registry
	metrics  metrics
	server   *http.Server
	mux      *http.ServeMux
}

func NewMonApi(config *MonitoringConfig) *MonitoringServer {
	m := &MonitoringServer{config: config}
	m.log = log.DefaultLogger
	m.log.Context = log.NewContext(nil).Str("module", "monitoring").Value()

	m.registry = prometheus.NewRegistry()
	f := promauto.With(m.registry)
	m.metrics = metrics{
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_samples_total",
			Help: "Location samples handed to the sink, by outcome",
		}, []string{"outcome"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_write_seconds",
			Help:    "Sink write latency",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_service_transitions_total",
			Help: "Reporter lifecycle transitions, by state",
		}, []string{"state"}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_service_running",
			Help: "1 while the reporter is running",
		}),
	}
	if config.Stats != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bustracker_queue_pending",
			Help: "Samples waiting in the write queue",
		}, func() float64 { return float64(config.Stats().Pending) })
	}

	m.mux = http.NewServeMux()
	m.mux.HandleFunc("/", m.serve_http)
	m.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	m.mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        m.mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return m
}

// Attach updates the metrics from the sample.* and service.* topics.
func (m *MonitoringServer) Attach(b *events.Bus) {
	b.Subscribe("monitoring", `^(sample|service)\.`, func(ctx context.Context, e bus.Event) {
		m.observe(e.Topic, e.Data)
	})
}

func (m *MonitoringServer) observe(topic string, data interface{}) {
	switch topic {
	case events.SampleWritten:
		m.metrics.samples.WithLabelValues("written").Inc()
		if ev, ok := data.(events.SampleEvent); ok {
			m.metrics.latency.Observe(ev.Latency.Seconds())
		}
	case events.SampleFailed:
		m.metrics.samples.WithLabelValues("failed").Inc()
		if ev, ok := data.(events.SampleEvent); ok {
			m.metrics.latency.Observe(ev.Latency.Seconds())
		}
	case events.SampleDropped:
		m.metrics.samples.WithLabelValues("dropped").Inc()
	case events.ServiceStarting:
		m.metrics.transitions.WithLabelValues("starting").Inc()
	case events.ServiceRunning:
		m.metrics.transitions.WithLabelValues("running").Inc()
		m.metrics.running.Set(1)
	case events.ServiceStopped:
		m.metrics.transitions.WithLabelValues("stopped").Inc()
		m.metrics.running.Set(0)
	}
}

func (m *MonitoringServer) Run() error {
	m.log.Info().Msgf("starting monitoring on %s", m.config.ListenAddr)
	err := m.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (m *MonitoringServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *MonitoringServer) serve_http(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var res interface{} = struct{}{}
	if m.config.Status != nil {
		res = m.config.Status()
	}
	util.JsonWrite(w, res)
}

func (m *MonitoringServer) GetHandler() http.Handler {
	return m.mux
}
