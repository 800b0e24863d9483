package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bbcat_relay"

var eventsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "events_total"),
	"Relay event counters.",
	[]string{"event"}, nil,
)

// collector exports a Metrics snapshot on every scrape. Gauge names are only
// known at runtime, so it describes nothing and is registered unchecked.
type collector struct {
	m *Metrics
}

func (collector) Describe(chan<- *prometheus.Desc) {}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.m.Snapshot() {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(v), name)
	}
	for name, v := range c.m.Gauges() {
		desc := prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), "Sampled relay gauge.", nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
	}
}

// PrometheusHandler exposes m in Prometheus' text exposition format: one
// counter family with an `event` label, one gauge per registered gauge name,
// and the Go runtime collector.
func PrometheusHandler(m *Metrics) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector{m: m},
		collectors.NewGoCollector(),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
