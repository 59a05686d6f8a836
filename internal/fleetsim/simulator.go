package fleetsim

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/monitor"
)

// Simulator feeds synthetic telemetry and detections into an ingester.
type Simulator struct {
	gen       *Generator
	intruders *IntruderEngine
	now       func() time.Time
	log       *slog.Logger

	sent     int
	rejected int
}

// New builds a simulator for robots. A zero seed uses the current time.
func New(robots []fleet.Robot, cfg config.SimulatorConfig, logger *slog.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	ids := make([]string, 0, len(robots))
	for _, r := range robots {
		ids = append(ids, r.ID)
	}
	return &Simulator{
		gen:       NewGenerator(robots, rng),
		intruders: NewIntruderEngine(cfg.Intruders, ids, rng),
		now:       time.Now,
		log:       logging.OrDefault(logger),
	}
}

// Run ticks every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration, ing monitor.Ingester) {
	s.log.Info("starting simulator", "interval", interval, "intruders", len(s.intruders.Intruders))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Step(ctx, ing)
		case <-ctx.Done():
			s.log.Info("stopping simulator", "sent", s.sent, "rejected", s.rejected)
			return
		}
	}
}

// Step produces one tick of events and ingests them.
func (s *Simulator) Step(ctx context.Context, ing monitor.Ingester) {
	now := s.now().UTC()
	s.intruders.Step()
	events := append(s.gen.Next(now), s.intruders.Detections(now)...)
	for _, ev := range events {
		if err := ing.Ingest(ctx, ev); err != nil {
			s.rejected++
			s.log.Debug("simulated event rejected", "event_id", ev.ID, "kind", ev.Kind, "err", err)
			continue
		}
		s.sent++
	}
}
