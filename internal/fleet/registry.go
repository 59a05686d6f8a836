package fleet

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

type entry struct {
	mu    sync.Mutex
	robot Robot
}

func (e *entry) get() Robot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.robot
}

// Registry holds the fleet. Membership changes take the registry lock; updates
// to one robot only lock that robot's entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds r. A robot without status starts offline.
func (g *Registry) Register(r Robot) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRobot)
	}
	if r.Status == "" {
		r.Status = StatusOffline
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRobot, r.Status)
	}
	if r.Location == (Location{}) {
		r.Location = r.Home
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, r.ID)
	}
	g.entries[r.ID] = &entry{robot: r}
	return nil
}

// Remove drops a robot.
func (g *Registry) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(g.entries, id)
	return nil
}

func (g *Registry) lookup(id string) (*entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get returns a copy of the robot.
func (g *Registry) Get(id string) (Robot, error) {
	e, err := g.lookup(id)
	if err != nil {
		return Robot{}, err
	}
	return e.get(), nil
}

// List returns every robot sorted by id.
func (g *Registry) List() []Robot {
	g.mu.RLock()
	es := lo.Values(g.entries)
	g.mu.RUnlock()
	out := lo.Map(es, func(e *entry, _ int) Robot { return e.get() })
	slices.SortFunc(out, func(a, b Robot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ApplyTelemetry merges u into the robot. Reports older than the current
// LastActive are ignored, so redelivered reports are harmless.
func (g *Registry) ApplyTelemetry(u Update) (Change, error) {
	if u.Status != "" && !u.Status.Valid() {
		return Change{}, fmt.Errorf("%w: status %q", ErrInvalidRobot, u.Status)
	}
	e, err := g.lookup(u.RobotID)
	if err != nil {
		return Change{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.robot
	if !before.Telemetry.LastActive.IsZero() && !u.Telemetry.LastActive.After(before.Telemetry.LastActive) {
		return Change{Before: before, After: before}, nil
	}
	after := before
	after.Telemetry = u.Telemetry
	if u.Status != "" {
		after.Status = u.Status
	} else if after.Status == StatusOffline {
		after.Status = StatusOnline
	}
	if u.Location != nil {
		after.Location = *u.Location
	}
	e.robot = after
	return Change{Before: before, After: after, Applied: true}, nil
}

// SetStatus overrides a robot's status.
func (g *Registry) SetStatus(id string, s Status) (Change, error) {
	if !s.Valid() {
		return Change{}, fmt.Errorf("%w: status %q", ErrInvalidRobot, s)
	}
	e, err := g.lookup(id)
	if err != nil {
		return Change{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.robot
	e.robot.Status = s
	return Change{Before: before, After: e.robot, Applied: before.Status != s}, nil
}

// MarkOffline sets a robot offline.
func (g *Registry) MarkOffline(id string) error {
	_, err := g.SetStatus(id, StatusOffline)
	return err
}

// SweepOffline marks robots silent for longer than after as offline and
// returns their ids.
func (g *Registry) SweepOffline(now time.Time, after time.Duration) []string {
	g.mu.RLock()
	es := lo.Values(g.entries)
	g.mu.RUnlock()
	var ids []string
	for _, e := range es {
		e.mu.Lock()
		r := e.robot
		if r.Status != StatusOffline && !r.Telemetry.LastActive.IsZero() && now.Sub(r.Telemetry.LastActive) > after {
			e.robot.Status = StatusOffline
			ids = append(ids, r.ID)
		}
		e.mu.Unlock()
	}
	slices.Sort(ids)
	return ids
}

// Stats summarizes the fleet for the statistics card.
type Stats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Patrolling int            `json:"patrolling"`
	Offline    int            `json:"offline"`
	AvgBattery float64        `json:"avg_battery"`
	MinSignal  float64        `json:"min_signal"`
	ByStatus   map[Status]int `json:"by_status"`
}

// Stats computes fleet-wide counts and averages.
func (g *Registry) Stats() Stats {
	robots := g.List()
	st := Stats{
		Total:    len(robots),
		ByStatus: lo.CountValuesBy(robots, func(r Robot) Status { return r.Status }),
	}
	st.Offline = st.ByStatus[StatusOffline]
	st.Patrolling = st.ByStatus[StatusPatrolling]
	st.Active = st.Total - st.Offline
	if len(robots) > 0 {
		st.AvgBattery = lo.SumBy(robots, func(r Robot) float64 { return r.Telemetry.Battery }) / float64(len(robots))
		st.MinSignal = lo.MinBy(robots, func(a, b Robot) bool { return a.Telemetry.Signal < b.Telemetry.Signal }).Telemetry.Signal
	}
	return st
}
