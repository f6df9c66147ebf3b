package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "urgentsync"

// Metrics groups the Prometheus instruments of the service. Each instance
// owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	TasksPosted   *prometheus.CounterVec
	ChannelErrors *prometheus.CounterVec
	Deleted       prometheus.Counter
	Completions   *prometheus.CounterVec
	LeaseWaits    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		TasksPosted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_posted_total",
			Help:      "Task messages posted by bucket and urgency.",
		}, []string{"bucket", "urgency"}),
		ChannelErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_errors_total",
			Help:      "Failed channel calls by operation.",
		}, []string{"op"}),
		Deleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages deleted from the channel.",
		}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Done button presses by outcome.",
		}, []string{"outcome"}),
		LeaseWaits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_acquisitions_total",
			Help:      "Lease acquisition attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(kind string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Runs.WithLabelValues(kind, outcome).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
