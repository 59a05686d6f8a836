// Package metrics exposes Prometheus instruments for the monitor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles monitor metrics.
type Metrics struct {
	StreamTransitions *prometheus.CounterVec
	TeleopCommands    *prometheus.CounterVec
	AlertsIngested    *prometheus.CounterVec
	OverlayDropped    *prometheus.CounterVec
	IngressEvents     *prometheus.CounterVec
	RobotsByStatus    *prometheus.GaugeVec
	OpenFeeds         prometheus.Gauge
	SinkErrors        *prometheus.CounterVec
}

// New constructs metrics and registers them on reg. A nil reg leaves them
// unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_stream_transitions_total",
				Help: "Stream session state transitions by target state",
			},
			[]string{"to"},
		),
		TeleopCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_teleop_commands_total",
				Help: "Teleop command transmissions by kind and result",
			},
			[]string{"kind", "result"},
		),
		AlertsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_alerts_ingested_total",
				Help: "Alerts ingested by type and severity",
			},
			[]string{"type", "severity"},
		),
		OverlayDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_overlay_dropped_total",
				Help: "Detection events dropped from overlays by reason",
			},
			[]string{"reason"},
		),
		IngressEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_ingress_events_total",
				Help: "Ingress events by kind and result",
			},
			[]string{"kind", "result"},
		),
		RobotsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "robotops_robots",
				Help: "Robots by current status",
			},
			[]string{"status"},
		),
		OpenFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robotops_open_feeds",
			Help: "Viewer feeds currently open",
		}),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotops_sink_errors_total",
				Help: "Sink write failures by record kind",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.StreamTransitions,
			m.TeleopCommands,
			m.AlertsIngested,
			m.OverlayDropped,
			m.IngressEvents,
			m.RobotsByStatus,
			m.OpenFeeds,
			m.SinkErrors,
		)
	}
	return m
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
