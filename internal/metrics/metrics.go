package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Admissions    *prometheus.CounterVec
	Cancellations *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "admissions_total",
			Help:      "Booking admission attempts by result kind.",
		}, []string{"result"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "cancellations_total",
			Help:      "Booking cancellation attempts by result kind.",
		}, []string{"result"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "venuebook",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Admissions,
		m.Cancellations,
		m.HTTPDuration,
	)

	return m
}

// Admission counts one admission attempt. result is "ok" or an error kind.
func (m *Metrics) Admission(result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Cancellation(result string) {
	if m == nil {
		return
	}
	m.Cancellations.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
