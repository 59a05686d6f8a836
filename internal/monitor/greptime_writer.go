package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"robotops/internal/alerts"
	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/teleop"
)

const greptimeWriteTimeout = 5 * time.Second

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry, alerts and commands to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client         greptimeClient
	telemetryTable string
	alertTable     string
	commandTable   string
	log            *slog.Logger
}

// NewGreptimeDBWriter connects to GreptimeDB. Tables are created on first write.
func NewGreptimeDBWriter(cfg config.GreptimeConfig, logger *slog.Logger) (*GreptimeDBWriter, error) {
	gcfg := greptime.NewConfig(cfg.Host).WithPort(cfg.Port).WithDatabase(cfg.Database)
	client, err := greptime.NewClient(gcfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{
		client:         client,
		telemetryTable: cfg.TelemetryTable,
		alertTable:     cfg.AlertTable,
		commandTable:   cfg.CommandTable,
		log:            logging.OrDefault(logger),
	}, nil
}

// Write inserts a single telemetry row.
func (w *GreptimeDBWriter) Write(row fleet.TelemetryRow) error {
	return w.WriteBatch([]fleet.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows.
func (w *GreptimeDBWriter) WriteBatch(rows []fleet.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := newTable(w.telemetryTable,
		[]string{"robot_id", "model"},
		[]column{
			{"status", types.STRING},
			{"battery", types.FLOAT64},
			{"signal", types.FLOAT64},
			{"temperature", types.FLOAT64},
			{"lat", types.FLOAT64},
			{"lon", types.FLOAT64},
		})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.RobotID, r.Model, r.Status, r.Battery, r.Signal, r.Temperature, r.Lat, r.Lon, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, w.telemetryTable, len(rows))
}

// WriteAlert inserts a single alert.
func (w *GreptimeDBWriter) WriteAlert(a alerts.Alert) error {
	return w.WriteAlerts([]alerts.Alert{a})
}

// WriteAlerts inserts multiple alerts.
func (w *GreptimeDBWriter) WriteAlerts(as []alerts.Alert) error {
	if len(as) == 0 {
		return nil
	}
	tbl, err := newTable(w.alertTable,
		[]string{"robot_id", "type", "severity"},
		[]column{
			{"id", types.STRING},
			{"title", types.STRING},
			{"message", types.STRING},
			{"image_ref", types.STRING},
			{"dismissed", types.BOOLEAN},
		})
	if err != nil {
		return err
	}
	for _, a := range as {
		if err := tbl.AddRow(a.RobotID, string(a.Type), string(a.Severity), a.ID, a.Title, a.Message, a.ImageRef, a.Dismissed, a.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, w.alertTable, len(as))
}

// WriteCommand inserts a teleop command.
func (w *GreptimeDBWriter) WriteCommand(c teleop.Command) error {
	tbl, err := newTable(w.commandTable,
		[]string{"robot_id", "kind"},
		[]column{
			{"direction", types.STRING},
			{"enabled", types.BOOLEAN},
			{"seq", types.INT64},
		})
	if err != nil {
		return err
	}
	if err := tbl.AddRow(c.RobotID, string(c.Kind), string(c.Direction), c.Enabled, int64(c.Seq), c.IssuedAt); err != nil {
		return err
	}
	return w.write(tbl, w.commandTable, 1)
}

func (w *GreptimeDBWriter) write(tbl *table.Table, name string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), greptimeWriteTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	w.log.Debug("greptime write", "table", name, "rows", n)
	return nil
}

type column struct {
	name string
	typ  types.ColumnType
}

// newTable declares tags, then fields, then the "ts" time index.
func newTable(name string, tags []string, fields []column) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if err := tbl.AddTagColumn(t, types.STRING); err != nil {
			return nil, err
		}
	}
	for _, f := range fields {
		if err := tbl.AddFieldColumn(f.name, f.typ); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}
