package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-resty/resty/v2"

	"robotops/internal/alerts"
	"robotops/internal/config"
	"robotops/internal/monitor"
	"robotops/internal/stream"
)

// newSinks builds the record sinks enabled in cfg. printOnly forces the stdout
// sink on and every network sink off. The returned cleanup closes whatever
// was opened.
func newSinks(cfg *config.Config, printOnly bool, extra []monitor.AlertWriter, logger *slog.Logger) (monitor.Sinks, func(), error) {
	var (
		tws     []monitor.TelemetryWriter
		aws     []monitor.AlertWriter
		cws     []monitor.CommandWriter
		closers []io.Closer
	)
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("closing sink", "err", err)
			}
		}
	}
	sc := cfg.Sinks

	if printOnly || sc.Stdout {
		w := monitor.NewJSONStdoutWriter()
		tws, aws, cws = append(tws, w), append(aws, w), append(cws, w)
	}
	if f := sc.File; f.Telemetry != "" || f.Alerts != "" || f.Commands != "" {
		fw, err := monitor.NewFileWriter(f.Telemetry, f.Alerts, f.Commands)
		if err != nil {
			cleanup()
			return monitor.Sinks{}, nil, err
		}
		closers = append(closers, fw)
		tws, aws, cws = append(tws, fw), append(aws, fw), append(cws, fw)
	}
	if !printOnly && sc.Greptime.Enabled {
		gw, err := monitor.NewGreptimeDBWriter(sc.Greptime, logger)
		if err != nil {
			cleanup()
			return monitor.Sinks{}, nil, err
		}
		logger.Info("greptime sink enabled", "host", sc.Greptime.Host, "database", sc.Greptime.Database)
		tws, aws, cws = append(tws, gw), append(aws, gw), append(cws, gw)
	}
	if !printOnly && sc.Kafka.Enabled {
		kw, err := monitor.NewKafkaWriter(sc.Kafka)
		if err != nil {
			cleanup()
			return monitor.Sinks{}, nil, err
		}
		logger.Info("kafka sink enabled", "brokers", sc.Kafka.Brokers)
		closers = append(closers, kw)
		tws, aws, cws = append(tws, kw), append(aws, kw), append(cws, kw)
	}
	aws = append(aws, extra...)

	mw := monitor.NewMultiWriter(tws, aws, cws)
	if mw.Empty() {
		return monitor.Sinks{}, cleanup, nil
	}
	return monitor.Sinks{Telemetry: mw, Alerts: mw, Commands: mw}, cleanup, nil
}

// newSourceFactory picks the feed source named by cfg.Stream.Source.
func newSourceFactory(cfg config.StreamConfig) (stream.SourceFactory, error) {
	switch cfg.Source {
	case "probe":
		client := resty.New().SetHeader("User-Agent", "robotops-monitor")
		return stream.NewProbeFactory(client, cfg.ProbeTimeout), nil
	case "simulated":
		return stream.NewSimulatedFactory(cfg.SimulatedDelay, cfg.SimulatedFailureRate, nil), nil
	default:
		return nil, fmt.Errorf("unknown stream source %q", cfg.Source)
	}
}

// lateAlertWriter forwards alerts to a writer attached after the monitor is
// built. Alerts raised before Attach are dropped.
type lateAlertWriter struct {
	mu sync.RWMutex
	w  monitor.AlertWriter
}

func (l *lateAlertWriter) Attach(w monitor.AlertWriter) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}

func (l *lateAlertWriter) WriteAlert(a alerts.Alert) error {
	l.mu.RLock()
	w := l.w
	l.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.WriteAlert(a)
}

var errNoInput = errors.New("input file required")
