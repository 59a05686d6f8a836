package monitor

import (
	"encoding/json"
	"time"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/overlay"
)

// EventKind selects how an ingress event is routed.
type EventKind string

const (
	KindTelemetry EventKind = "telemetry"
	KindDetection EventKind = "detection"
	KindAlert     EventKind = "alert"
)

// Event is one record arriving from a robot or an upstream detector. Delivery
// is at-least-once; ingest is idempotent per event.
type Event struct {
	ID        string          `json:"id"`
	RobotID   string          `json:"robot_id"`
	Kind      EventKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TelemetryPayload is the body of a telemetry event.
type TelemetryPayload struct {
	Status      fleet.Status    `json:"status,omitempty"`
	Battery     float64         `json:"battery"`
	Signal      float64         `json:"signal"`
	Temperature float64         `json:"temperature"`
	Location    *fleet.Location `json:"location,omitempty"`
}

// DetectionPayload is the body of a detection event: one frame's detections.
type DetectionPayload struct {
	Detections []overlay.Event `json:"detections"`
}

// NewEvent builds an event around a JSON-encodable payload.
func NewEvent(id, robotID string, kind EventKind, ts time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, RobotID: robotID, Kind: kind, Timestamp: ts, Payload: raw}, nil
}

// AlertEvent wraps an alert as an ingress event.
func AlertEvent(a alerts.Alert) (Event, error) {
	return NewEvent(a.ID, a.RobotID, KindAlert, a.Timestamp, a)
}
