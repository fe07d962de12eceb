package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Metrics counts what a run sent and checked. It satisfies
// commonops.Observer.
type Metrics struct {
	registry          *prometheus.Registry
	commands          *prometheus.CounterVec
	reads             *prometheus.CounterVec
	assertionFailures prometheus.Counter
	stepDuration      *prometheus.HistogramVec
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clop_commands_total",
			Help: "Commands sent to the device, by command and reply status.",
		}, []string{"command", "status"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clop_reads_total",
			Help: "Attribute reads, by attribute.",
		}, []string{"attribute"}),
		assertionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clop_assertion_failures_total",
			Help: "Failed status or attribute checks.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clop_step_duration_seconds",
			Help:    "Step execution time, by action.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"action"}),
	}
	m.registry.MustRegister(m.commands, m.reads, m.assertionFailures, m.stepDuration)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CommandSent(command string, status wire.Status) {
	m.commands.WithLabelValues(command, status.String()).Inc()
}

func (m *Metrics) AttributeRead(attribute string) {
	m.reads.WithLabelValues(attribute).Inc()
}

func (m *Metrics) AssertionFailed() {
	m.assertionFailures.Inc()
}

// ObserveStep records how long a step took.
func (m *Metrics) ObserveStep(action string, d time.Duration) {
	m.stepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// WriteTextfile writes the metrics in text exposition format, for the node
// exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
