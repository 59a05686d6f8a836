// Package fleet tracks the robots under monitoring and their latest telemetry.
package fleet

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("robot not found")
	ErrAlreadyExists = errors.New("robot already registered")
	ErrInvalidRobot  = errors.New("invalid robot")
)

// Status of a robot as shown on its badge.
type Status string

const (
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusPatrolling Status = "patrolling"
	StatusWarning    Status = "warning"
	StatusError      Status = "error"
	StatusRecording  Status = "recording"
)

// Statuses lists every status.
var Statuses = []Status{StatusOnline, StatusOffline, StatusPatrolling, StatusWarning, StatusError, StatusRecording}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

var statusColors = map[Status]string{
	StatusOnline:     "#30D158",
	StatusWarning:    "#FFD60A",
	StatusError:      "#FF453A",
	StatusRecording:  "#FF375F",
	StatusPatrolling: "#5E5CE6",
}

// StatusColor is the badge color for a status.
func StatusColor(s Status) string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "#8E8E93"
}

// Location is a named position.
type Location struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

// Telemetry is the health snapshot a robot reports.
type Telemetry struct {
	Battery     float64   `json:"battery"`
	Signal      float64   `json:"signal"`
	Temperature float64   `json:"temperature"`
	LastActive  time.Time `json:"last_active"`
}

// Robot is the registry's view of one robot.
type Robot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	StreamURL string    `json:"stream_url"`
	Status    Status    `json:"status"`
	Telemetry Telemetry `json:"telemetry"`
	Location  Location  `json:"location"`
	Home      Location  `json:"home"`
}

// Update is a telemetry report from a robot. Zero Status and nil Location leave
// the current values in place.
type Update struct {
	RobotID   string    `json:"robot_id"`
	Status    Status    `json:"status,omitempty"`
	Telemetry Telemetry `json:"telemetry"`
	Location  *Location `json:"location,omitempty"`
}

// Change describes the effect of an Update.
type Change struct {
	Before  Robot
	After   Robot
	Applied bool
}

// TelemetryRow is the flattened record written to telemetry sinks.
type TelemetryRow struct {
	RobotID     string    `json:"robot_id"`    // TAG
	Model       string    `json:"model"`       // TAG
	Status      string    `json:"status"`      // FIELD
	Battery     float64   `json:"battery"`     // FIELD
	Signal      float64   `json:"signal"`      // FIELD
	Temperature float64   `json:"temperature"` // FIELD
	Lat         float64   `json:"lat"`         // FIELD
	Lon         float64   `json:"lon"`         // FIELD
	Timestamp   time.Time `json:"ts"`          // TIME INDEX
}

// Row flattens r for sinks, stamped at ts.
func (r Robot) Row(ts time.Time) TelemetryRow {
	return TelemetryRow{
		RobotID:     r.ID,
		Model:       r.Model,
		Status:      string(r.Status),
		Battery:     r.Telemetry.Battery,
		Signal:      r.Telemetry.Signal,
		Temperature: r.Telemetry.Temperature,
		Lat:         r.Location.Lat,
		Lon:         r.Location.Lon,
		Timestamp:   ts,
	}
}
