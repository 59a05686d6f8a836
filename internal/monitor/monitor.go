// Package monitor ties the fleet registry, alert triage, viewer feeds and teleop
// channels into one service.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"robotops/internal/alerts"
	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/metrics"
	"robotops/internal/overlay"
	"robotops/internal/stream"
	"robotops/internal/teleop"
)

var (
	ErrFeedNotFound  = errors.New("feed not found")
	ErrTeleopBusy    = errors.New("teleop controlled by another viewer")
	ErrUnknownKind   = errors.New("unknown event kind")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrMonitorClosed = errors.New("monitor closed")
)

// Deps are the collaborators a Monitor talks to. Nil members get defaults:
// no sinks, a transport that drops commands, unregistered metrics.
type Deps struct {
	Transport teleop.Transport
	Sources   stream.SourceFactory
	Sinks     Sinks
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type viewerKey struct{ robotID, viewerID string }

type detectionBatch struct {
	events   []overlay.Event
	received time.Time
}

// Monitor is the live monitoring core. All methods are safe for concurrent use.
type Monitor struct {
	cfg       *config.Config
	fleet     *fleet.Registry
	alerts    *alerts.Engine
	styles    overlay.StyleTable
	sinks     Sinks
	metrics   *metrics.Metrics
	transport teleop.Transport
	sources   stream.SourceFactory
	now       func() time.Time
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	audit  sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	viewers     map[viewerKey]*Viewer
	channels    map[string]*teleop.Channel
	controllers map[string]string
	detections  map[string]detectionBatch
}

// New builds a monitor and registers the robots declared in cfg.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Monitor, error) {
	styles := overlay.DefaultStyles()
	for class, palette := range cfg.Overlay.ClassStyles {
		var err error
		if styles, err = styles.With(class, palette); err != nil {
			return nil, err
		}
	}
	if deps.Transport == nil {
		deps.Transport = teleop.TransportFunc(func(context.Context, teleop.Command) error { return nil })
	}
	if deps.Sources == nil {
		deps.Sources = stream.NewProbeFactory(nil, cfg.Stream.ProbeTimeout)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:         cfg,
		fleet:       fleet.NewRegistry(),
		alerts:      alerts.NewEngine(),
		styles:      styles,
		sinks:       deps.Sinks,
		metrics:     deps.Metrics,
		transport:   deps.Transport,
		sources:     deps.Sources,
		now:         deps.Now,
		log:         logging.OrDefault(logger),
		ctx:         ctx,
		cancel:      cancel,
		viewers:     make(map[viewerKey]*Viewer),
		channels:    make(map[string]*teleop.Channel),
		controllers: make(map[string]string),
		detections:  make(map[string]detectionBatch),
	}
	for _, r := range cfg.Robots {
		if err := m.RegisterRobot(RobotFromConfig(r)); err != nil {
			cancel()
			return nil, err
		}
	}
	return m, nil
}

// RobotFromConfig converts a configured robot.
func RobotFromConfig(r config.Robot) fleet.Robot {
	return fleet.Robot{
		ID:        r.ID,
		Name:      r.Name,
		Model:     r.Model,
		StreamURL: r.StreamURL,
		Home:      fleet.Location{Name: r.Home.Name, Lat: r.Home.Lat, Lon: r.Home.Lon},
	}
}

// RegisterRobot adds a robot to the fleet.
func (m *Monitor) RegisterRobot(r fleet.Robot) error {
	if err := m.fleet.Register(r); err != nil {
		return err
	}
	m.log.Info("robot registered", "robot_id", r.ID, "model", r.Model)
	return nil
}

// RemoveRobot closes the robot's feeds and teleop channel and drops it.
func (m *Monitor) RemoveRobot(id string) error {
	// Leaving the fleet under m.mu makes OpenFeed and Teleop, which re-check
	// membership under the same lock, fail for this robot from here on.
	m.mu.Lock()
	if err := m.fleet.Remove(id); err != nil {
		m.mu.Unlock()
		return err
	}
	var vs []*Viewer
	for k, v := range m.viewers {
		if k.robotID == id {
			vs = append(vs, v)
			delete(m.viewers, k)
		}
	}
	ch := m.channels[id]
	delete(m.channels, id)
	delete(m.controllers, id)
	delete(m.detections, id)
	m.mu.Unlock()

	for _, v := range vs {
		v.close()
	}
	m.metrics.OpenFeeds.Sub(float64(len(vs)))
	if ch != nil {
		ch.Close()
	}
	m.log.Info("robot removed", "robot_id", id, "feeds_closed", len(vs))
	return nil
}

// GetRobot returns one robot.
func (m *Monitor) GetRobot(id string) (fleet.Robot, error) {
	return m.fleet.Get(id)
}

// Robots returns the fleet sorted by id.
func (m *Monitor) Robots() []fleet.Robot {
	return m.fleet.List()
}

// FleetStats summarizes the fleet.
func (m *Monitor) FleetStats() fleet.Stats {
	return m.fleet.Stats()
}

// ListAlerts answers an alert query. Filters accept a type or severity name,
// "all" or "".
func (m *Monitor) ListAlerts(typeFilter, severityFilter string, includeDismissed bool) ([]alerts.Alert, error) {
	typ, err := alerts.ParseTypeFilter(typeFilter)
	if err != nil {
		return nil, err
	}
	sev, err := alerts.ParseSeverityFilter(severityFilter)
	if err != nil {
		return nil, err
	}
	return m.alerts.Query(alerts.Filter{Type: typ, Severity: sev, IncludeDismissed: includeDismissed}), nil
}

// GetAlert returns one alert.
func (m *Monitor) GetAlert(id string) (alerts.Alert, error) {
	return m.alerts.Get(id)
}

// DismissAlert hides an alert from default queries.
func (m *Monitor) DismissAlert(id string) error {
	if err := m.alerts.Dismiss(id); err != nil {
		return err
	}
	m.log.Info("alert dismissed", "alert_id", id)
	return nil
}

// AlertStats summarizes alerts relative to the current day.
func (m *Monitor) AlertStats() alerts.Stats {
	return m.alerts.Stats(m.now())
}

// Close stops every feed and channel. The monitor cannot be used afterwards.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	vs := make([]*Viewer, 0, len(m.viewers))
	for _, v := range m.viewers {
		vs = append(vs, v)
	}
	chs := make([]*teleop.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		chs = append(chs, ch)
	}
	m.viewers = make(map[viewerKey]*Viewer)
	m.channels = make(map[string]*teleop.Channel)
	m.mu.Unlock()

	for _, v := range vs {
		v.close()
	}
	m.metrics.OpenFeeds.Set(0)
	for _, ch := range chs {
		ch.Close()
	}
	m.cancel()
	m.audit.Wait()
}

func (m *Monitor) raiseAlert(ctx context.Context, a alerts.Alert) error {
	if err := m.alerts.Ingest(a); err != nil {
		return err
	}
	m.metrics.AlertsIngested.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	logging.FromContext(ctx).Info("alert", "alert_id", a.ID, "type", a.Type, "severity", a.Severity, "robot_id", a.RobotID)
	if m.sinks.Alerts != nil {
		if err := m.sinks.Alerts.WriteAlert(a); err != nil {
			m.sinkError("alert", err)
		}
	}
	return nil
}

func (m *Monitor) sinkError(kind string, err error) {
	m.metrics.SinkErrors.WithLabelValues(kind).Inc()
	m.log.Error("sink write failed", "kind", kind, "err", err)
}

func (m *Monitor) robotName(id string) string {
	r, err := m.fleet.Get(id)
	if err != nil || r.Name == "" {
		return id
	}
	return r.Name
}

func eventAlertID(prefix, robotID, eventID string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, robotID, eventID)
}
