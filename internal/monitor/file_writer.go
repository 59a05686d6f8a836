package monitor

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/teleop"
)

// FileWriter writes telemetry, alerts and commands to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	files    []*os.File
	teleEnc  *json.Encoder
	alertEnc *json.Encoder
	cmdEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. Any path may be empty to skip that log.
func NewFileWriter(telemetryPath, alertPath, commandPath string) (*FileWriter, error) {
	fw := &FileWriter{}
	open := func(path string) (*json.Encoder, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		fw.files = append(fw.files, f)
		return json.NewEncoder(f), nil
	}
	var err error
	if fw.teleEnc, err = open(telemetryPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.alertEnc, err = open(alertPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.cmdEnc, err = open(commandPath); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func (f *FileWriter) encode(enc *json.Encoder, v any) error {
	if enc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return enc.Encode(v)
}

// Write logs a single telemetry row, if enabled.
func (f *FileWriter) Write(row fleet.TelemetryRow) error {
	return f.encode(f.teleEnc, row)
}

// WriteBatch logs multiple telemetry rows.
func (f *FileWriter) WriteBatch(rows []fleet.TelemetryRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert logs a single alert, if enabled.
func (f *FileWriter) WriteAlert(a alerts.Alert) error {
	return f.encode(f.alertEnc, a)
}

// WriteAlerts logs multiple alerts.
func (f *FileWriter) WriteAlerts(as []alerts.Alert) error {
	for _, a := range as {
		if err := f.WriteAlert(a); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand logs a teleop command, if enabled.
func (f *FileWriter) WriteCommand(c teleop.Command) error {
	return f.encode(f.cmdEnc, c)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, file := range f.files {
		errs = append(errs, file.Close())
	}
	f.files = nil
	return errors.Join(errs...)
}
