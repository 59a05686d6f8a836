package alerts

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Engine holds the current alert set. Reads proceed concurrently; writes are
// exclusive. Alerts are stored by value.
type Engine struct {
	mu     sync.RWMutex
	alerts map[string]Alert
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{alerts: make(map[string]Alert)}
}

// Ingest stores a, replacing any alert with the same id. A dismissal already
// recorded for that id is kept.
func (e *Engine) Ingest(a Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.alerts[a.ID]; ok && prev.Dismissed {
		a.Dismissed = true
	}
	e.alerts[a.ID] = a
	return nil
}

// Get returns the alert with id.
func (e *Engine) Get(id string) (Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Dismiss hides an alert from default queries. Dismissing twice is harmless.
func (e *Engine) Dismiss(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.alerts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	a.Dismissed = true
	e.alerts[id] = a
	return nil
}

// Query returns matching alerts newest first, ties broken by id.
func (e *Engine) Query(f Filter) []Alert {
	e.mu.RLock()
	out := make([]Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b Alert) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of stored alerts, dismissed included.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.alerts)
}

// Stats summarizes the alert set for the statistics card.
type Stats struct {
	Total      int              `json:"total"`
	Active     int              `json:"active"`
	Dismissed  int              `json:"dismissed"`
	Today      int              `json:"today"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByType     map[Type]int     `json:"by_type"`
}

// Stats computes counts relative to now's calendar day. Severity and type
// counts cover active alerts only.
func (e *Engine) Stats(now time.Time) Stats {
	all := e.Query(Filter{IncludeDismissed: true})
	active := lo.Filter(all, func(a Alert, _ int) bool { return !a.Dismissed })
	y, m, d := now.Date()
	return Stats{
		Total:     len(all),
		Active:    len(active),
		Dismissed: len(all) - len(active),
		Today: lo.CountBy(all, func(a Alert) bool {
			ay, am, ad := a.Timestamp.In(now.Location()).Date()
			return ay == y && am == m && ad == d
		}),
		BySeverity: lo.CountValuesBy(active, func(a Alert) Severity { return a.Severity }),
		ByType:     lo.CountValuesBy(active, func(a Alert) Type { return a.Type }),
	}
}
