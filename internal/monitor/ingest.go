package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/metrics"
	"robotops/internal/overlay"
)

// Ingest routes one event by kind. Events for unknown robots fail with
// fleet.ErrNotFound; malformed payloads fail with ErrInvalidEvent.
func (m *Monitor) Ingest(ctx context.Context, ev Event) error {
	err := m.ingest(ctx, ev)
	m.metrics.IngressEvents.WithLabelValues(string(ev.Kind), metrics.Result(err)).Inc()
	if err != nil {
		logging.FromContext(ctx).Debug("ingest rejected", "event_id", ev.ID, "kind", ev.Kind, "robot_id", ev.RobotID, "err", err)
	}
	return err
}

func (m *Monitor) ingest(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	switch ev.Kind {
	case KindTelemetry:
		return m.ingestTelemetry(ctx, ev)
	case KindDetection:
		return m.ingestDetections(ctx, ev)
	case KindAlert:
		return m.ingestAlert(ctx, ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
}

func decode(ev Event, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: %s event %s has no payload", ErrInvalidEvent, ev.Kind, ev.ID)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", ErrInvalidEvent, ev.Kind, err)
	}
	return nil
}

func (m *Monitor) ingestTelemetry(ctx context.Context, ev Event) error {
	var p TelemetryPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	ch, err := m.fleet.ApplyTelemetry(fleet.Update{
		RobotID: ev.RobotID,
		Status:  p.Status,
		Telemetry: fleet.Telemetry{
			Battery:     p.Battery,
			Signal:      p.Signal,
			Temperature: p.Temperature,
			LastActive:  ev.Timestamp,
		},
		Location: p.Location,
	})
	if err != nil {
		return err
	}
	if !ch.Applied {
		return nil
	}

	threshold := m.cfg.Monitor.LowBatteryThreshold
	before, after := ch.Before, ch.After
	wasAbove := before.Telemetry.LastActive.IsZero() || before.Telemetry.Battery >= threshold
	if after.Telemetry.Battery < threshold && wasAbove {
		name := after.Name
		if name == "" {
			name = after.ID
		}
		err := m.raiseAlert(ctx, alerts.Alert{
			ID:        eventAlertID("low-battery", after.ID, ev.ID),
			Type:      alerts.TypeSystem,
			Severity:  alerts.SeverityLow,
			Title:     "Low Battery Warning",
			Message:   fmt.Sprintf("%s battery level below %.0f%%. Please consider recharging soon.", name, threshold),
			Timestamp: ev.Timestamp,
			RobotID:   after.ID,
		})
		if err != nil {
			return err
		}
	}
	if after.Status == fleet.StatusError && before.Status != fleet.StatusError {
		err := m.raiseAlert(ctx, alerts.Alert{
			ID:        eventAlertID("robot-error", after.ID, ev.ID),
			Type:      alerts.TypeSystem,
			Severity:  alerts.SeverityHigh,
			Title:     "Robot Error",
			Message:   fmt.Sprintf("%s reported an error state.", m.robotName(after.ID)),
			Timestamp: ev.Timestamp,
			RobotID:   after.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) ingestDetections(ctx context.Context, ev Event) error {
	var p DetectionPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	if _, err := m.fleet.Get(ev.RobotID); err != nil {
		return err
	}
	for i := range p.Detections {
		if p.Detections[i].ID == "" {
			p.Detections[i].ID = fmt.Sprintf("%s-%d", ev.ID, i)
		}
		if p.Detections[i].Timestamp.IsZero() {
			p.Detections[i].Timestamp = ev.Timestamp
		}
	}

	m.mu.Lock()
	if _, err := m.fleet.Get(ev.RobotID); err != nil {
		m.mu.Unlock()
		return err
	}
	m.detections[ev.RobotID] = detectionBatch{events: p.Detections, received: m.now()}
	m.mu.Unlock()

	for _, d := range p.Detections {
		typ, ok := m.cfg.Monitor.DetectionAlertClasses[strings.ToLower(d.Class)]
		if !ok || d.Confidence < m.cfg.Monitor.DetectionAlertConfidence || d.Confidence > 1 {
			continue
		}
		a := alerts.Alert{
			ID:        "det-" + d.ID,
			Type:      alerts.Type(typ),
			Severity:  detectionSeverity(alerts.Type(typ)),
			Title:     titleCase(d.Class) + " Detected",
			Message:   fmt.Sprintf("%s detected %s with %d%% confidence.", m.robotName(ev.RobotID), strings.ToLower(d.Class), int(math.Round(d.Confidence*100))),
			Timestamp: d.Timestamp,
			RobotID:   ev.RobotID,
		}
		if err := m.raiseAlert(ctx, a); err != nil {
			logging.FromContext(ctx).Warn("detection alert rejected", "detection_id", d.ID, "err", err)
		}
	}
	return nil
}

func (m *Monitor) ingestAlert(ctx context.Context, ev Event) error {
	var a alerts.Alert
	if err := decode(ev, &a); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = ev.ID
	}
	if a.RobotID == "" {
		a.RobotID = ev.RobotID
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = ev.Timestamp
	}
	if a.RobotID != "" {
		if _, err := m.fleet.Get(a.RobotID); err != nil {
			return err
		}
	}
	return m.raiseAlert(ctx, a)
}

// latestDetections returns the robot's last batch unless it has expired.
func (m *Monitor) latestDetections(robotID string) []overlay.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.detections[robotID]
	if !ok || m.now().Sub(b.received) > m.cfg.Monitor.DetectionTTL {
		return nil
	}
	return b.events
}

func (m *Monitor) pruneDetections() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.detections {
		if now.Sub(b.received) > m.cfg.Monitor.DetectionTTL {
			delete(m.detections, id)
		}
	}
}

func detectionSeverity(t alerts.Type) alerts.Severity {
	switch t {
	case alerts.TypeHuman:
		return alerts.SeverityHigh
	case alerts.TypeAnimal:
		return alerts.SeverityLow
	default:
		return alerts.SeverityMedium
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
