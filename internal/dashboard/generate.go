// Package dashboard renders Grafana dashboards for the Greptime sink tables.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Tables names the Greptime tables the dashboards query.
type Tables struct {
	Telemetry string
	Alerts    string
	Commands  string
}

// DefaultTables matches the sink defaults.
var DefaultTables = Tables{
	Telemetry: "robot_telemetry",
	Alerts:    "robot_alerts",
	Commands:  "teleop_commands",
}

// Render executes every embedded template and writes the dashboards to
// outDir. Templates read datasource ids with the env function, which fails
// when the variable is unset.
func Render(outDir string, tables Tables) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, entry := range names {
		name := entry.Name()
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, path.Join("templates", name))
		if err != nil {
			return err
		}
		var b strings.Builder
		if err := t.Execute(&b, tables); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
			return err
		}
	}
	return nil
}
