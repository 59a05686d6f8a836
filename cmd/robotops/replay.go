package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"robotops/internal/config"
	"robotops/internal/logging"
	"robotops/internal/monitor"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded event log",
	Long:  "replay feeds a JSONL event log back through a fresh monitor, exporting to the configured sinks, and prints the resulting fleet and alert summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return errNoInput
		}
		cfg, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		return runReplay(cmd.Context(), cfg, replayInput, replaySpeed, replayPrintOnly, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to event log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delays)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to external sinks")
	replayCmd.MarkFlagRequired("input")
}

type replaySummary struct {
	Events   int    `json:"events"`
	Rejected int    `json:"rejected"`
	Fleet    any    `json:"fleet"`
	Alerts   any    `json:"alerts"`
	Error    string `json:"error,omitempty"`
}

func runReplay(ctx context.Context, cfg *config.Config, input string, speed float64, printOnly bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	sinks, closeSinks, err := newSinks(cfg, printOnly, nil, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	mon, err := monitor.New(cfg, monitor.Deps{Sinks: sinks}, logger)
	if err != nil {
		return err
	}
	defer mon.Close()

	rejected := 0
	n, err := monitor.ReplayLogFile(logging.NewContext(ctx, logger), input, mon, speed, func(ev monitor.Event, err error) {
		rejected++
		logger.Warn("replayed event rejected", "event_id", ev.ID, "kind", ev.Kind, "err", err)
	})
	summary := replaySummary{Events: n, Rejected: rejected, Fleet: mon.FleetStats(), Alerts: mon.AlertStats()}
	if err != nil {
		summary.Error = err.Error()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summary); encErr != nil {
		return encErr
	}
	return err
}
