package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"robotops/internal/alerts"
	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/teleop"
)

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func sampleRow() fleet.TelemetryRow {
	return fleet.TelemetryRow{
		RobotID:     "r1",
		Model:       "sentry",
		Status:      "patrolling",
		Battery:     72.5,
		Signal:      90,
		Temperature: 31,
		Lat:         47.1,
		Lon:         8.2,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	}
}

func sampleAlert() alerts.Alert {
	return alerts.Alert{
		ID:        "a1",
		Type:      alerts.TypeHuman,
		Severity:  alerts.SeverityHigh,
		Title:     "Person Detected",
		RobotID:   "r1",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
}

func TestGreptimeWriterTelemetry(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, telemetryTable: "robot_telemetry", log: logging.Discard()}

	if err := w.WriteBatch([]fleet.TelemetryRow{sampleRow(), sampleRow()}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table write, got %d", len(m.tables))
	}
	rows := m.tables[0].GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	schema := rows.Schema
	if len(schema) != 9 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	if schema[0].ColumnName != "robot_id" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("robot_id column = %+v", schema[0])
	}
	if schema[8].ColumnName != "ts" || schema[8].SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("time index column = %+v", schema[8])
	}
	vals := rows.Rows[0].Values
	if got := vals[0].GetStringValue(); got != "r1" {
		t.Fatalf("robot_id = %s, want r1", got)
	}
	if got := vals[3].GetF64Value(); got != 72.5 {
		t.Fatalf("battery = %v, want 72.5", got)
	}
}

func TestGreptimeWriterAlertsAndCommands(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, alertTable: "robot_alerts", commandTable: "teleop_commands", log: logging.Discard()}

	if err := w.WriteAlert(sampleAlert()); err != nil {
		t.Fatalf("WriteAlert: %v", err)
	}
	cmd := teleop.Move(teleop.Left)
	cmd.RobotID = "r1"
	cmd.Seq = 7
	cmd.IssuedAt = time.Unix(1700000001, 0)
	if err := w.WriteCommand(cmd); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if len(m.tables) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(m.tables))
	}
	alertVals := m.tables[0].GetRows().Rows[0].Values
	if got := alertVals[1].GetStringValue(); got != "human" {
		t.Fatalf("type = %s, want human", got)
	}
	if got := alertVals[3].GetStringValue(); got != "a1" {
		t.Fatalf("id = %s, want a1", got)
	}
	cmdVals := m.tables[1].GetRows().Rows[0].Values
	if got := cmdVals[1].GetStringValue(); got != "move" {
		t.Fatalf("kind = %s, want move", got)
	}
	if got := cmdVals[2].GetStringValue(); got != "left" {
		t.Fatalf("direction = %s, want left", got)
	}
	if got := cmdVals[4].GetI64Value(); got != 7 {
		t.Fatalf("seq = %d, want 7", got)
	}
}

func TestGreptimeWriterPropagatesErrors(t *testing.T) {
	boom := errors.New("unavailable")
	w := &GreptimeDBWriter{client: &mockGreptimeClient{err: boom}, telemetryTable: "t", log: logging.Discard()}
	if err := w.Write(sampleRow()); !errors.Is(err, boom) {
		t.Fatalf("expected client error, got %v", err)
	}
}

func TestKafkaWriterKeysByRobot(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	cfg := config.KafkaConfig{TelemetryTopic: "tel", AlertTopic: "alr", CommandTopic: "cmd"}
	w := newKafkaWriter(sp, cfg)

	checkRobot := func(val []byte) error {
		if !bytes.Contains(val, []byte(`"r1"`)) {
			return errors.New("payload missing robot id")
		}
		return nil
	}
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(checkRobot)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(checkRobot)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(checkRobot)
	sp.ExpectSendMessageAndSucceed()
	sp.ExpectSendMessageAndSucceed()

	if err := w.Write(sampleRow()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.WriteAlert(sampleAlert()); err != nil {
		t.Fatalf("WriteAlert: %v", err)
	}
	cmd := teleop.ReturnHome()
	cmd.RobotID = "r1"
	if err := w.WriteCommand(cmd); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if err := w.WriteBatch([]fleet.TelemetryRow{sampleRow(), sampleRow()}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaWriterSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	w := newKafkaWriter(sp, config.KafkaConfig{TelemetryTopic: "tel"})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	if err := w.Write(sampleRow()); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected broker error, got %v", err)
	}
	_ = w.Close()
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	tele := filepath.Join(dir, "telemetry.jsonl")
	cmds := filepath.Join(dir, "commands.jsonl")
	fw, err := NewFileWriter(tele, "", cmds)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := fw.WriteBatch([]fleet.TelemetryRow{sampleRow(), sampleRow()}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := fw.WriteAlert(sampleAlert()); err != nil {
		t.Fatalf("disabled alert log should be skipped: %v", err)
	}
	cmd := teleop.SetPatrol(true)
	cmd.RobotID = "r2"
	if err := fw.WriteCommand(cmd); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(tele)
	if err != nil {
		t.Fatalf("read telemetry: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 telemetry lines, got %d", len(lines))
	}
	var row fleet.TelemetryRow
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("decode telemetry: %v", err)
	}
	if row.RobotID != "r1" || row.Battery != 72.5 || !row.Timestamp.Equal(sampleRow().Timestamp) {
		t.Fatalf("unexpected telemetry: %#v", row)
	}

	data, err = os.ReadFile(cmds)
	if err != nil {
		t.Fatalf("read commands: %v", err)
	}
	var got teleop.Command
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if got.RobotID != "r2" || got.Kind != teleop.KindSetPatrol || !got.Enabled {
		t.Fatalf("unexpected command: %#v", got)
	}
}

func TestFileWriterBadPath(t *testing.T) {
	if _, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "x.jsonl"), "", ""); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write(fleet.TelemetryRow) error    { return f.err }
func (f failingWriter) WriteAlert(alerts.Alert) error     { return f.err }
func (f failingWriter) WriteCommand(teleop.Command) error { return f.err }

func TestMultiWriterTriesEveryWriter(t *testing.T) {
	boom := errors.New("disk full")
	rec := &recordingSinks{}
	mw := NewMultiWriter(
		[]TelemetryWriter{failingWriter{boom}, rec},
		[]AlertWriter{failingWriter{boom}, rec},
		[]CommandWriter{rec},
	)
	if mw.Empty() {
		t.Fatalf("writer should not be empty")
	}
	if err := mw.WriteBatch([]fleet.TelemetryRow{sampleRow()}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if err := mw.WriteAlerts([]alerts.Alert{sampleAlert()}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if err := mw.WriteCommand(teleop.ReturnHome()); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if len(rec.telemetry) != 1 || len(rec.alerts) != 1 || len(rec.commands) != 1 {
		t.Fatalf("healthy writer skipped: %d/%d/%d", len(rec.telemetry), len(rec.alerts), len(rec.commands))
	}
	if !NewMultiWriter(nil, nil, nil).Empty() {
		t.Fatalf("expected empty writer")
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	_ = w.Write(sampleRow())
	_ = w.WriteAlert(sampleAlert())
	_ = w.WriteCommand(teleop.ReturnHome())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"telemetry", "alert", "command"} {
		var rec struct {
			Kind   string          `json:"kind"`
			Record json.RawMessage `json:"record"`
		}
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if rec.Kind != want || len(rec.Record) == 0 {
			t.Fatalf("line %d = %s", i, lines[i])
		}
	}
}
