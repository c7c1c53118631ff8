// Package metrics exposes suite measurements to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry; nothing is registered globally.
type Metrics struct {
	reg *prometheus.Registry

	SectionDuration  *prometheus.HistogramVec
	ObjectsCollected *prometheus.CounterVec
	PoolSize         prometheus.Gauge
	Runs             prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		SectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memlab",
			Name:      "section_duration_seconds",
			Help:      "Wall time of each demonstration section.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"section"}),
		ObjectsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memlab",
			Name:      "objects_collected_total",
			Help:      "Objects reclaimed, by the mechanism that reclaimed them.",
		}, []string{"collector"}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memlab",
			Name:      "pool_size",
			Help:      "Idle instances held by the bounded pool after the last pooling run.",
		}),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memlab",
			Name:      "runs_total",
			Help:      "Completed suite runs.",
		}),
	}
	reg.MustRegister(
		m.SectionDuration,
		m.ObjectsCollected,
		m.PoolSize,
		m.Runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
