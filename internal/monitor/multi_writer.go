package monitor

import (
	"errors"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/teleop"
)

// MultiWriter fans records out to multiple writers. Every writer is tried; the
// failures are joined.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	alertwriters []AlertWriter
	cmdwriters   []CommandWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(tws []TelemetryWriter, aws []AlertWriter, cws []CommandWriter) *MultiWriter {
	return &MultiWriter{telewriters: tws, alertwriters: aws, cmdwriters: cws}
}

// Empty reports whether no writer is attached.
func (mw *MultiWriter) Empty() bool {
	return len(mw.telewriters) == 0 && len(mw.alertwriters) == 0 && len(mw.cmdwriters) == 0
}

// Write sends a telemetry row to all writers.
func (mw *MultiWriter) Write(row fleet.TelemetryRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, w.Write(row))
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple telemetry rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []fleet.TelemetryRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, writeTelemetry(w, rows))
	}
	return errors.Join(errs...)
}

// WriteAlert sends an alert to all alert writers.
func (mw *MultiWriter) WriteAlert(a alerts.Alert) error {
	var errs []error
	for _, w := range mw.alertwriters {
		errs = append(errs, w.WriteAlert(a))
	}
	return errors.Join(errs...)
}

// WriteAlerts sends multiple alerts to all alert writers, using batch if supported.
func (mw *MultiWriter) WriteAlerts(as []alerts.Alert) error {
	var errs []error
	for _, w := range mw.alertwriters {
		errs = append(errs, writeAlerts(w, as))
	}
	return errors.Join(errs...)
}

// WriteCommand sends a command to all command writers.
func (mw *MultiWriter) WriteCommand(c teleop.Command) error {
	var errs []error
	for _, w := range mw.cmdwriters {
		errs = append(errs, w.WriteCommand(c))
	}
	return errors.Join(errs...)
}
