package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolutions     *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	transferBytes   prometheus.Counter
	activeTransfers prometheus.Gauge
	jobs            *prometheus.CounterVec
	historyEvicted  prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvestarr",
			Name:      "resolutions_total",
			Help:      "Post resolutions by result.",
		}, []string{"result"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvestarr",
			Name:      "transfers_total",
			Help:      "Media transfers by kind and result.",
		}, []string{"kind", "result"}),
		transferBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvestarr",
			Name:      "transfer_bytes_total",
			Help:      "Bytes written by completed transfers.",
		}),
		activeTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "harvestarr",
			Name:      "active_transfers",
			Help:      "Transfers currently holding a concurrency slot.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvestarr",
			Name:      "jobs_total",
			Help:      "Durable job runs by outcome.",
		}, []string{"outcome"}),
		historyEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvestarr",
			Name:      "history_evicted_total",
			Help:      "History records dropped to respect the retention limit.",
		}),
	}

	m.registry.MustRegister(
		m.resolutions,
		m.transfers,
		m.transferBytes,
		m.activeTransfers,
		m.jobs,
		m.historyEvicted,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns the Prometheus exposition handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ResolutionDone counts one post resolution by result
func (m *Metrics) ResolutionDone(err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result(err)).Inc()
}

// TransferStarted marks a transfer as active
func (m *Metrics) TransferStarted() {
	if m == nil {
		return
	}
	m.activeTransfers.Inc()
}

// TransferFinished records a transfer outcome and the bytes it wrote
func (m *Metrics) TransferFinished(kind string, bytes int64, err error) {
	if m == nil {
		return
	}
	m.activeTransfers.Dec()
	m.transfers.WithLabelValues(kind, result(err)).Inc()
	if err == nil && bytes > 0 {
		m.transferBytes.Add(float64(bytes))
	}
}

// JobFinished counts one durable job run by outcome
func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

// HistoryEvicted counts records dropped by the history bound
func (m *Metrics) HistoryEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.historyEvicted.Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
