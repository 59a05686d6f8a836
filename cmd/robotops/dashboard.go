package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"robotops/internal/config"
	"robotops/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long:  "dashboard renders Grafana dashboards for the configured GreptimeDB tables. Datasource ids come from GREPTIMEDB_DATASOURCE_UID and PROMETHEUS_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables := dashboard.DefaultTables
		if cfg, err := config.Load(configPath, schemaPath); err == nil {
			g := cfg.Sinks.Greptime
			tables = dashboard.Tables{Telemetry: g.TelemetryTable, Alerts: g.AlertTable, Commands: g.CommandTable}
		}
		if err := dashboard.Render(dashboardOut, tables); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dashboards written to %s\n", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory for rendered dashboards")
}
