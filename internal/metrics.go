package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry  *prometheus.Registry
	synthesis *prometheus.CounterVec
	skipped   prometheus.Counter
	zones     *prometheus.GaugeVec
	records   prometheus.Gauge
	reloads   *prometheus.CounterVec
	mutations *prometheus.CounterVec
}

// NewMetrics registers the collectors on a dedicated registry so several
// instances can coexist in tests.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		synthesis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coredns_manager_synthesis_total",
			Help: "Configuration synthesis passes by result.",
		}, []string{"result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coredns_manager_reverse_skipped_total",
			Help: "Zone derivations skipped during synthesis.",
		}),
		zones: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coredns_manager_zones",
			Help: "Zones in the last generated configuration.",
		}, []string{"kind"}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coredns_manager_records",
			Help: "Records in the last generated configuration.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coredns_manager_reload_total",
			Help: "DNS server reload attempts by strategy and result.",
		}, []string{"strategy", "result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coredns_manager_record_mutations_total",
			Help: "Record store mutations by operation and result.",
		}, []string{"operation", "result"}),
	}
	m.registry.MustRegister(
		m.synthesis, m.skipped, m.zones, m.records, m.reloads, m.mutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSynthesis(err error, forward, reverse, records, skipped int) {
	if m == nil {
		return
	}
	if err != nil {
		m.synthesis.WithLabelValues("error").Inc()
		return
	}
	m.synthesis.WithLabelValues("ok").Inc()
	m.zones.WithLabelValues("forward").Set(float64(forward))
	m.zones.WithLabelValues("reverse").Set(float64(reverse))
	m.records.Set(float64(records))
	m.skipped.Add(float64(skipped))
}

func (m *Metrics) ObserveReload(strategy string, err error) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(strategy, result(err)).Inc()
}

func (m *Metrics) ObserveMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
