// Package metrics holds the Prometheus collectors of the receipt server
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "receipt"

// Metrics is a private registry with the pipeline collectors
type Metrics struct {
	registry *prometheus.Registry

	Interpretations *prometheus.CounterVec
	Commands        prometheus.Histogram
	Unresolved      *prometheus.CounterVec
	Jobs            *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Interpretations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpretations_total",
			Help:      "Layout interpretations by result.",
		}, []string{"result"}),
		Commands: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commands_emitted",
			Help:      "Printer commands produced per successful interpretation.",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 8),
		}),
		Unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_fields_total",
			Help:      "Placeholders and dynamic fields that resolved to empty text.",
		}, []string{"reason"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_jobs_total",
			Help:      "Print job transitions by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.Interpretations,
		m.Commands,
		m.Unresolved,
		m.Jobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveInterpretation records one interpretation outcome
func (m *Metrics) ObserveInterpretation(commands int, err error) {
	if err != nil {
		m.Interpretations.WithLabelValues("error").Inc()
		return
	}
	m.Interpretations.WithLabelValues("ok").Inc()
	m.Commands.Observe(float64(commands))
}

// ObserveUnresolved counts a field that printed as empty
func (m *Metrics) ObserveUnresolved(reason string) {
	m.Unresolved.WithLabelValues(reason).Inc()
}

// ObserveJob counts a job status transition
func (m *Metrics) ObserveJob(status string) {
	m.Jobs.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
