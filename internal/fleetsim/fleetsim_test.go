package fleetsim

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/logging"
	"robotops/internal/monitor"
)

func testRobots() []fleet.Robot {
	return []fleet.Robot{
		{ID: "r1", Model: "rover", Home: fleet.Location{Name: "dock", Lat: 47.37, Lon: 8.54}},
		{ID: "r2", Model: "sentry", Home: fleet.Location{Name: "gate", Lat: 47.38, Lon: 8.55}},
	}
}

func decodeTelemetry(t *testing.T, ev monitor.Event) monitor.TelemetryPayload {
	t.Helper()
	var p monitor.TelemetryPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatalf("decode telemetry: %v", err)
	}
	return p
}

func TestGeneratorDrainsBatteryByModel(t *testing.T) {
	g := NewGenerator(testRobots(), rand.New(rand.NewSource(1)))
	now := time.Unix(0, 0)
	var last []monitor.Event
	for i := 0; i < 10; i++ {
		last = g.Next(now)
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 events, got %d", len(last))
	}
	rover, sentry := decodeTelemetry(t, last[0]), decodeTelemetry(t, last[1])
	if rover.Battery >= 100 || sentry.Battery >= 100 {
		t.Fatalf("battery did not drain: %v %v", rover.Battery, sentry.Battery)
	}
	if rover.Battery >= sentry.Battery {
		t.Fatalf("rover should drain faster: rover=%v sentry=%v", rover.Battery, sentry.Battery)
	}
	if last[0].ID != "r1-tel-10" || last[0].Kind != monitor.KindTelemetry {
		t.Fatalf("unexpected event %+v", last[0])
	}
	if rover.Location == nil || rover.Signal < 0 || rover.Signal > 100 {
		t.Fatalf("unexpected payload %+v", rover)
	}
}

func TestGeneratorDocksDrainedRobot(t *testing.T) {
	g := NewGenerator(testRobots()[:1], rand.New(rand.NewSource(1)))
	g.robots[0].battery = 5.1
	g.robots[0].status = fleet.StatusPatrolling

	p := decodeTelemetry(t, g.Next(time.Unix(0, 0))[0])
	if p.Status != fleet.StatusError {
		t.Fatalf("expected error status at empty battery, got %s", p.Status)
	}
	p = decodeTelemetry(t, g.Next(time.Unix(1, 0))[0])
	if p.Status != fleet.StatusOnline || p.Battery != 100 {
		t.Fatalf("expected recharge at dock, got %+v", p)
	}
	if p.Location.Lat != 47.37 || p.Location.Lon != 8.54 {
		t.Fatalf("expected robot back home, got %+v", p.Location)
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	g1 := NewGenerator(testRobots(), rand.New(rand.NewSource(7)))
	g2 := NewGenerator(testRobots(), rand.New(rand.NewSource(7)))
	for i := 0; i < 5; i++ {
		a, b := g1.Next(time.Unix(0, 0)), g2.Next(time.Unix(0, 0))
		if string(a[0].Payload) != string(b[0].Payload) {
			t.Fatalf("tick %d differs: %s vs %s", i, a[0].Payload, b[0].Payload)
		}
	}
}

func TestIntrudersStayInFrame(t *testing.T) {
	e := NewIntruderEngine(6, []string{"r1", "r2"}, rand.New(rand.NewSource(3)))
	if len(e.Intruders) != 6 {
		t.Fatalf("expected 6 intruders, got %d", len(e.Intruders))
	}
	for i := 0; i < 500; i++ {
		e.Step()
		for _, in := range e.Intruders {
			if err := in.Box.Validate(); err != nil {
				t.Fatalf("step %d: intruder %s left the frame: %+v (%v)", i, in.ID, in.Box, err)
			}
			if in.Confidence < 0 || in.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", in.Confidence)
			}
		}
	}
}

func TestIntruderDetectionsPerRobot(t *testing.T) {
	e := NewIntruderEngine(3, []string{"r1", "r2", "r3", "r4"}, rand.New(rand.NewSource(3)))
	evs := e.Detections(time.Unix(5, 0))
	if len(evs) != 4 {
		t.Fatalf("expected one event per robot, got %d", len(evs))
	}
	counts := map[string]int{}
	for _, ev := range evs {
		var p monitor.DetectionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		counts[ev.RobotID] = len(p.Detections)
	}
	if counts["r1"] != 1 || counts["r3"] != 1 || counts["r4"] != 0 {
		t.Fatalf("unexpected spread %v", counts)
	}
}

func TestSimulatorFeedsMonitor(t *testing.T) {
	cfg := &config.Config{Robots: []config.Robot{
		{ID: "r1", Name: "Rover", Model: "rover"},
		{ID: "r2", Name: "Sentry", Model: "sentry"},
	}}
	cfg.ApplyDefaults()
	m, err := monitor.New(cfg, monitor.Deps{}, logging.Discard())
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	defer m.Close()

	sim := New(m.Robots(), config.SimulatorConfig{Intruders: 2, Seed: 11}, logging.Discard())
	sim.Step(context.Background(), m)
	if sim.rejected != 0 || sim.sent != 4 {
		t.Fatalf("sent=%d rejected=%d", sim.sent, sim.rejected)
	}
	for _, r := range m.Robots() {
		if r.Status == fleet.StatusOffline || r.Telemetry.Battery == 0 {
			t.Fatalf("robot %s not updated: %+v", r.ID, r)
		}
	}
}

func TestSimulatorRunStops(t *testing.T) {
	sim := New(testRobots(), config.SimulatorConfig{Intruders: 1, Seed: 1}, logging.Discard())
	var n int
	ing := monitor.IngesterFunc(func(context.Context, monitor.Event) error {
		n++
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	sim.Run(ctx, 5*time.Millisecond, ing)
	if n == 0 {
		t.Fatalf("no events produced")
	}
}
