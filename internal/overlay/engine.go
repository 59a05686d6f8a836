// Package overlay turns detection events into styled, pixel-space boxes for a
// single viewer's frame.
package overlay

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"robotops/internal/geometry"
	"robotops/internal/logging"
)

// Event is one detection reported by a robot's perception pipeline.
type Event struct {
	ID         string                 `json:"id"`
	Class      string                 `json:"class"`
	Confidence float64                `json:"confidence"`
	Box        geometry.NormalizedBox `json:"box"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Box is a renderable overlay for one event.
type Box struct {
	EventID    string            `json:"event_id"`
	Class      string            `json:"class"`
	Confidence float64           `json:"confidence"`
	Caption    string            `json:"caption"`
	Pixels     geometry.PixelBox `json:"pixels"`
	Style      Style             `json:"style"`
}

// Drop reasons passed to Config.OnDrop.
const (
	DropBelowThreshold    = "below_threshold"
	DropInvalidConfidence = "invalid_confidence"
	DropInvalidGeometry   = "invalid_geometry"
)

// Config tunes an Engine.
type Config struct {
	Threshold float64
	Styles    StyleTable
	OnDrop    func(reason string)
}

// Engine renders frames for one feed. Each Update supersedes the previous one.
type Engine struct {
	threshold float64
	styles    StyleTable
	onDrop    func(string)
	log       *slog.Logger

	gen atomic.Uint64
}

// NewEngine returns an engine; a zero Config uses the default styles.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	styles := cfg.Styles
	if styles.classes == nil {
		styles = DefaultStyles()
	}
	return &Engine{
		threshold: cfg.Threshold,
		styles:    styles,
		onDrop:    cfg.OnDrop,
		log:       logging.OrDefault(logger),
	}
}

// Update returns the boxes for events drawn on vp. The sequence is lazy and may
// be ranged over once; it ends early when a newer Update is issued or ctx is done.
func (e *Engine) Update(ctx context.Context, vp geometry.Viewport, events []Event) iter.Seq[Box] {
	gen := e.gen.Add(1)
	evs := slices.Clone(events)
	var used atomic.Bool
	return func(yield func(Box) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		for _, ev := range evs {
			if ctx.Err() != nil || e.gen.Load() != gen {
				return
			}
			b, ok := e.render(ev, vp)
			if !ok {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Render is a single-event Update without supersession.
func (e *Engine) Render(ev Event, vp geometry.Viewport) (Box, bool) {
	return e.render(ev, vp)
}

func (e *Engine) render(ev Event, vp geometry.Viewport) (Box, bool) {
	if math.IsNaN(ev.Confidence) || ev.Confidence < 0 || ev.Confidence > 1 {
		e.drop(ev, DropInvalidConfidence, nil)
		return Box{}, false
	}
	if ev.Confidence < e.threshold {
		e.drop(ev, DropBelowThreshold, nil)
		return Box{}, false
	}
	px, err := geometry.Project(ev.Box, vp)
	if err != nil {
		e.drop(ev, DropInvalidGeometry, err)
		return Box{}, false
	}
	return Box{
		EventID:    ev.ID,
		Class:      ev.Class,
		Confidence: ev.Confidence,
		Caption:    Caption(ev.Class, ev.Confidence),
		Pixels:     px,
		Style:      e.styles.Lookup(ev.Class),
	}, true
}

func (e *Engine) drop(ev Event, reason string, err error) {
	if reason != DropBelowThreshold {
		e.log.Debug("overlay event dropped", "event_id", ev.ID, "reason", reason, "err", err)
	}
	if e.onDrop != nil {
		e.onDrop(reason)
	}
}

// Caption formats a box label such as "person (87%)".
func Caption(class string, confidence float64) string {
	return fmt.Sprintf("%s (%d%%)", class, int(math.Round(confidence*100)))
}

// Collect materializes a frame.
func Collect(seq iter.Seq[Box]) []Box {
	return slices.Collect(seq)
}
