package fleetsim

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"robotops/internal/geometry"
	"robotops/internal/monitor"
	"robotops/internal/overlay"
)

// Intruder classes the engine spawns.
var IntruderClasses = []string{"person", "vehicle", "animal", "unknown"}

// respawnChance is the per-step probability that an intruder leaves and a new one appears.
const respawnChance = 0.02

// Intruder is one object drifting across a robot's camera frame.
type Intruder struct {
	ID         string
	RobotID    string
	Class      string
	Confidence float64
	Box        geometry.NormalizedBox
	VX, VY     float64
}

// IntruderEngine maintains and moves simulated intruders.
type IntruderEngine struct {
	rng       *rand.Rand
	robots    []string
	Intruders []*Intruder
}

// NewIntruderEngine spawns count intruders spread across robotIDs.
func NewIntruderEngine(count int, robotIDs []string, rng *rand.Rand) *IntruderEngine {
	e := &IntruderEngine{rng: rng, robots: robotIDs}
	if len(robotIDs) == 0 {
		return e
	}
	for i := 0; i < count; i++ {
		e.Intruders = append(e.Intruders, e.spawn(robotIDs[i%len(robotIDs)]))
	}
	return e
}

func (e *IntruderEngine) spawn(robotID string) *Intruder {
	w := 0.08 + e.rng.Float64()*0.17
	h := 0.15 + e.rng.Float64()*0.35
	return &Intruder{
		ID:         uuid.NewString(),
		RobotID:    robotID,
		Class:      IntruderClasses[e.rng.Intn(len(IntruderClasses))],
		Confidence: 0.6 + e.rng.Float64()*0.39,
		Box: geometry.NormalizedBox{
			X:      e.rng.Float64() * (1 - w),
			Y:      e.rng.Float64() * (1 - h),
			Width:  w,
			Height: h,
		},
		VX: e.rng.Float64()*0.04 - 0.02,
		VY: e.rng.Float64()*0.02 - 0.01,
	}
}

// Step drifts every intruder, bouncing off the frame edges so boxes stay valid.
func (e *IntruderEngine) Step() {
	for i, in := range e.Intruders {
		if e.rng.Float64() < respawnChance {
			e.Intruders[i] = e.spawn(in.RobotID)
			continue
		}
		in.Box.X, in.VX = bounce(in.Box.X, in.VX, in.Box.Width)
		in.Box.Y, in.VY = bounce(in.Box.Y, in.VY, in.Box.Height)
		in.Confidence = clamp(in.Confidence+e.rng.Float64()*0.06-0.03, 0.5, 0.99)
	}
}

func bounce(pos, vel, size float64) (float64, float64) {
	pos += vel
	if pos < 0 {
		return -pos, -vel
	}
	if limit := 1 - size; pos > limit {
		return 2*limit - pos, -vel
	}
	return pos, vel
}

// Detections returns one detection event per robot carrying its intruders.
// Robots with nothing in frame get an empty batch, which clears their overlay.
func (e *IntruderEngine) Detections(now time.Time) []monitor.Event {
	byRobot := make(map[string][]overlay.Event, len(e.robots))
	for _, in := range e.Intruders {
		byRobot[in.RobotID] = append(byRobot[in.RobotID], overlay.Event{
			ID:         in.ID,
			Class:      in.Class,
			Confidence: in.Confidence,
			Box:        in.Box,
			Timestamp:  now,
		})
	}
	out := make([]monitor.Event, 0, len(e.robots))
	for _, id := range e.robots {
		ev, err := monitor.NewEvent(uuid.NewString(), id, monitor.KindDetection, now, monitor.DetectionPayload{Detections: byRobot[id]})
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}
