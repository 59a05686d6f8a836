package monitor

import (
	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/teleop"
)

// TelemetryWriter receives fleet telemetry snapshots.
type TelemetryWriter interface {
	Write(fleet.TelemetryRow) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]fleet.TelemetryRow) error
}

// AlertWriter receives every ingested alert.
type AlertWriter interface {
	WriteAlert(alerts.Alert) error
}

// Optional: alert writers may support batch mode
type batchAlertWriter interface {
	WriteAlerts([]alerts.Alert) error
}

// CommandWriter records teleop commands for audit.
type CommandWriter interface {
	WriteCommand(teleop.Command) error
}

// Sinks groups the optional record sinks. Nil members are skipped.
type Sinks struct {
	Telemetry TelemetryWriter
	Alerts    AlertWriter
	Commands  CommandWriter
}

func writeTelemetry(w TelemetryWriter, rows []fleet.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func writeAlerts(w AlertWriter, as []alerts.Alert) error {
	if len(as) == 0 {
		return nil
	}
	if bw, ok := w.(batchAlertWriter); ok {
		return bw.WriteAlerts(as)
	}
	for _, a := range as {
		if err := w.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}
