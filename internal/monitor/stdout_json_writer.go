package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
	"robotops/internal/teleop"
)

// JSONStdoutWriter prints telemetry, alerts and commands as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

type taggedRecord struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

func (w *JSONStdoutWriter) emit(kind string, v any) error {
	data, err := json.Marshal(taggedRecord{Kind: kind, Record: v})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a telemetry row.
func (w *JSONStdoutWriter) Write(row fleet.TelemetryRow) error {
	return w.emit("telemetry", row)
}

// WriteBatch outputs multiple telemetry rows.
func (w *JSONStdoutWriter) WriteBatch(rows []fleet.TelemetryRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert outputs an alert.
func (w *JSONStdoutWriter) WriteAlert(a alerts.Alert) error {
	return w.emit("alert", a)
}

// WriteCommand outputs a teleop command.
func (w *JSONStdoutWriter) WriteCommand(c teleop.Command) error {
	return w.emit("command", c)
}
