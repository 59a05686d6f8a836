package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	schemaPath string
)

var rootCmd = &cobra.Command{
	Use:   "robotops",
	Short: "RobotOps fleet monitoring toolkit",
	Long:  "RobotOps monitors security robot fleets: live feeds with detection overlays, teleoperation and alert triage.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/monitor.yaml", "Path to monitor configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/monitor.cue", "Path to CUE schema file (empty to skip validation)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
