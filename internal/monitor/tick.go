package monitor

import (
	"context"
	"time"

	"robotops/internal/fleet"
	"robotops/internal/logging"
)

// Run sweeps the fleet and writes telemetry snapshots every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	interval := m.cfg.Monitor.TickInterval
	log.Info("starting monitor", "tick_interval", interval, "robots", len(m.fleet.List()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick(ctx)
		case <-ctx.Done():
			log.Info("stopping monitor")
			return
		}
	}
}

// tick marks silent robots offline, exports snapshots and refreshes gauges.
func (m *Monitor) tick(ctx context.Context) {
	log := logging.FromContext(ctx)
	now := m.now()

	for _, id := range m.fleet.SweepOffline(now, m.cfg.Monitor.OfflineAfter) {
		log.Warn("robot went offline", "robot_id", id, "offline_after", m.cfg.Monitor.OfflineAfter)
	}
	m.pruneDetections()

	robots := m.fleet.List()
	counts := make(map[fleet.Status]int, len(fleet.Statuses))
	rows := make([]fleet.TelemetryRow, 0, len(robots))
	for _, r := range robots {
		counts[r.Status]++
		rows = append(rows, r.Row(now))
	}
	for _, s := range fleet.Statuses {
		m.metrics.RobotsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}

	if m.sinks.Telemetry != nil {
		if err := writeTelemetry(m.sinks.Telemetry, rows); err != nil {
			m.sinkError("telemetry", err)
		}
	}
}
