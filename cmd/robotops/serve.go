package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"robotops/internal/admin"
	"robotops/internal/config"
	"robotops/internal/fleetsim"
	"robotops/internal/logging"
	"robotops/internal/metrics"
	"robotops/internal/monitor"
	"robotops/internal/teleop"
	"robotops/internal/transport"
	"robotops/internal/tui"
)

var (
	servePrintOnly bool
	serveTUI       bool
	serveAddr      string
	serveSimulate  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet monitor",
	Long:  "serve starts the monitor with its admin API, optional MQTT transport, built-in fleet simulator and terminal UI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Admin.Addr = serveAddr
		}
		if serveSimulate {
			cfg.Simulator.Enabled = true
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, servePrintOnly, serveTUI && term.IsTerminal(int(os.Stdout.Fd())))
	},
}

func init() {
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Print records to STDOUT instead of writing to external sinks")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Show the terminal UI when stdout is a terminal")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Admin API listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "Feed the monitor from the built-in fleet simulator")
}

// runServe wires the monitor and blocks until ctx is done or the admin server
// fails.
func runServe(ctx context.Context, cfg *config.Config, printOnly, withTUI bool) error {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if withTUI {
		// the terminal belongs to the UI
		logger = logging.Discard()
		printOnly = false
		cfg.Sinks.Stdout = false
	}
	ctx = logging.NewContext(ctx, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	uiSink := &lateAlertWriter{}
	sinks, closeSinks, err := newSinks(cfg, printOnly, []monitor.AlertWriter{uiSink}, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	sources, err := newSourceFactory(cfg.Stream)
	if err != nil {
		return err
	}

	var (
		tr   teleop.Transport = transport.NewLogTransport(logger)
		mqtt *transport.MQTTClient
	)
	if cfg.MQTT.Enabled {
		if mqtt, err = transport.NewMQTTClient(cfg.MQTT, logger); err != nil {
			return err
		}
		defer mqtt.Close()
		tr = mqtt
	}

	mon, err := monitor.New(cfg, monitor.Deps{Transport: tr, Sources: sources, Sinks: sinks, Metrics: m}, logger)
	if err != nil {
		return err
	}
	defer mon.Close()

	var ing monitor.Ingester = mon
	if path := cfg.Sinks.File.Events; path != "" {
		elw, err := monitor.NewEventLogWriter(path)
		if err != nil {
			return err
		}
		defer elw.Close()
		ing = elw.Tee(mon)
	}

	if mqtt != nil {
		if err := mqtt.SubscribeEvents(ctx, ing); err != nil {
			return err
		}
	}

	go mon.Run(ctx)

	if cfg.Simulator.Enabled {
		sim := fleetsim.New(mon.Robots(), cfg.Simulator, logger)
		go sim.Run(ctx, cfg.Simulator.Interval, ing)
	}

	if withTUI {
		ui := tui.New(mon, cfg.Monitor.TickInterval)
		uiSink.Attach(ui)
		defer ui.Close()
	}

	srv := admin.NewServer(mon, ing, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
	err = srv.Start(ctx, cfg.Admin.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("admin server failed", "err", err)
		return err
	}
	logger.Info("robotops stopped", slog.Int("robots", len(mon.Robots())))
	return nil
}
