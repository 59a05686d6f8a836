package dashboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), DefaultTables); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "uid2")

	dir := t.TempDir()
	tables := Tables{Telemetry: "tel_x", Alerts: "alerts_x", Commands: "cmd_x"}
	if err := Render(dir, tables); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "robot-fleet.json"))
	if err != nil {
		t.Fatalf("read fleet dashboard: %v", err)
	}
	fleet := string(b)
	if !strings.Contains(fleet, "uid1") || !strings.Contains(fleet, "FROM tel_x") || !strings.Contains(fleet, "FROM cmd_x") {
		t.Fatalf("fleet dashboard not rendered:\n%s", fleet)
	}

	b, err = os.ReadFile(filepath.Join(dir, "robot-alerts.json"))
	if err != nil {
		t.Fatalf("read alerts dashboard: %v", err)
	}
	alerts := string(b)
	if !strings.Contains(alerts, "uid2") || !strings.Contains(alerts, "FROM alerts_x") {
		t.Fatalf("alerts dashboard not rendered:\n%s", alerts)
	}
}
