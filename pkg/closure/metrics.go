package closure

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Metrics are the device-side Prometheus collectors.
type Metrics struct {
	Commands   *prometheus.CounterVec
	Reads      *prometheus.CounterVec
	Injections *prometheus.CounterVec
	State      prometheus.Gauge
	Position   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clop",
			Subsystem: "device",
			Name:      "commands_total",
			Help:      "Commands invoked on the device by name and response status.",
		}, []string{"command", "status"}),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clop",
			Subsystem: "device",
			Name:      "reads_total",
			Help:      "Attribute reads served by the device.",
		}, []string{"attribute"}),
		Injections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clop",
			Subsystem: "device",
			Name:      "injections_total",
			Help:      "Simulation stimuli received, by name and result.",
		}, []string{"name", "result"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clop",
			Subsystem: "device",
			Name:      "operational_state",
			Help:      "Current OperationalState enum value.",
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clop",
			Subsystem: "device",
			Name:      "opening_fraction",
			Help:      "Simulated opening, 0 fully closed and 1 fully open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.Reads, m.Injections, m.State, m.Position)
	}
	return m
}

func (m *Metrics) command(id wire.CommandID, status wire.Status) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(wire.CommandName(id), status.String()).Inc()
}

func (m *Metrics) read(id wire.AttributeID) {
	if m == nil {
		return
	}
	m.Reads.WithLabelValues(wire.AttributeName(id)).Inc()
}

func (m *Metrics) injection(name string, ok bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	m.Injections.WithLabelValues(name, result).Inc()
}

func (m *Metrics) observe(state wire.OperationalState, fraction float64) {
	if m == nil {
		return
	}
	m.State.Set(float64(state))
	m.Position.Set(fraction)
}
