// Package fleetsim produces synthetic telemetry and detections for a demo fleet.
package fleetsim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"robotops/internal/fleet"
	"robotops/internal/monitor"
)

// robotState is the simulated physical state of one robot.
type robotState struct {
	id          string
	model       string
	battery     float64
	signal      float64
	temperature float64
	location    fleet.Location
	home        fleet.Location
	status      fleet.Status
	seq         int
}

// Generator simulates telemetry for a fleet of robots.
type Generator struct {
	rng    *rand.Rand
	robots []*robotState
}

// NewGenerator starts every robot at home, fully charged and on patrol.
func NewGenerator(robots []fleet.Robot, rng *rand.Rand) *Generator {
	g := &Generator{rng: rng}
	for _, r := range robots {
		g.robots = append(g.robots, &robotState{
			id:          r.ID,
			model:       r.Model,
			battery:     100,
			signal:      85 + rng.Float64()*15,
			temperature: 30 + rng.Float64()*5,
			location:    r.Home,
			home:        r.Home,
			status:      fleet.StatusPatrolling,
		})
	}
	return g
}

// Next advances every robot one tick and returns its telemetry events.
func (g *Generator) Next(now time.Time) []monitor.Event {
	out := make([]monitor.Event, 0, len(g.robots))
	for _, r := range g.robots {
		g.step(r)
		r.seq++
		loc := r.location
		ev, err := monitor.NewEvent(fmt.Sprintf("%s-tel-%d", r.id, r.seq), r.id, monitor.KindTelemetry, now, monitor.TelemetryPayload{
			Status:      r.status,
			Battery:     round1(r.battery),
			Signal:      round1(r.signal),
			Temperature: round1(r.temperature),
			Location:    &loc,
		})
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (g *Generator) step(r *robotState) {
	// A drained robot docks and comes back charged on the following tick.
	if r.status == fleet.StatusError {
		r.battery = 100
		r.location = r.home
		r.status = fleet.StatusOnline
		return
	}

	if r.status == fleet.StatusPatrolling {
		r.location = randomWalk(g.rng, r.location, r.model)
	}
	r.battery -= batteryDrain(r.model)
	if r.status == fleet.StatusPatrolling {
		r.battery -= batteryDrain(r.model)
	}
	if r.battery < 0 {
		r.battery = 0
	}
	r.signal = clamp(r.signal+g.rng.Float64()*6-3, 0, 100)
	r.temperature = clamp(r.temperature+g.rng.Float64()-0.5, 15, 70)

	switch {
	case r.battery <= 5:
		r.status = fleet.StatusError
	case g.rng.Float64() < 0.05:
		if r.status == fleet.StatusPatrolling {
			r.status = fleet.StatusOnline
		} else {
			r.status = fleet.StatusPatrolling
		}
	}
}

// randomWalk moves the robot in a pseudo-random direction, speed depends on model.
func randomWalk(rng *rand.Rand, loc fleet.Location, model string) fleet.Location {
	var speedMin, speedMax float64
	switch model {
	case "rover":
		speedMin, speedMax = 1, 3
	case "sentry":
		speedMin, speedMax = 0.5, 1.5
	default:
		speedMin, speedMax = 0.5, 2
	}

	heading := rng.Float64() * 2 * math.Pi
	speed := rng.Float64()*(speedMax-speedMin) + speedMin // m per tick

	deltaLat := (speed * math.Cos(heading)) / 111000
	deltaLon := (speed * math.Sin(heading)) / (111000 * math.Cos(loc.Lat*math.Pi/180))
	return fleet.Location{Name: loc.Name, Lat: loc.Lat + deltaLat, Lon: loc.Lon + deltaLon}
}

// batteryDrain returns battery consumption per tick based on model.
func batteryDrain(model string) float64 {
	switch model {
	case "rover":
		return 0.25
	case "sentry":
		return 0.1
	default:
		return 0.15
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
