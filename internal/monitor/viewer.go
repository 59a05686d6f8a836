package monitor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"robotops/internal/geometry"
	"robotops/internal/overlay"
	"robotops/internal/stream"
	"robotops/internal/teleop"
)

// Viewer is one operator's feed of one robot: a stream session plus the
// overlay engine drawing that robot's detections.
type Viewer struct {
	m        *Monitor
	robotID  string
	viewerID string
	session  *stream.Session
	engine   *overlay.Engine
	log      *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// OpenFeed starts streaming robotID to viewerID.
func (m *Monitor) OpenFeed(ctx context.Context, robotID, viewerID string) (*Viewer, error) {
	r, err := m.fleet.Get(robotID)
	if err != nil {
		return nil, err
	}
	key := viewerKey{robotID, viewerID}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}
	if _, err := m.fleet.Get(robotID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if _, ok := m.viewers[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", stream.ErrAlreadyOpen, robotID, viewerID)
	}
	v := &Viewer{
		m:        m,
		robotID:  robotID,
		viewerID: viewerID,
		log:      m.log.With("robot_id", robotID, "viewer_id", viewerID),
	}
	v.engine = overlay.NewEngine(overlay.Config{
		Threshold: m.cfg.Overlay.Threshold,
		Styles:    m.styles,
		OnDrop:    func(reason string) { m.metrics.OverlayDropped.WithLabelValues(reason).Inc() },
	}, v.log)
	v.session = stream.NewSession(
		stream.Descriptor{RobotID: robotID, ViewerID: viewerID, URL: r.StreamURL},
		m.sources,
		stream.Config{MaxRetries: m.cfg.Stream.MaxRetries, Observer: v.observe},
		v.log,
	)
	m.viewers[key] = v
	m.mu.Unlock()

	m.metrics.OpenFeeds.Inc()
	// The feed outlives the request that opened it.
	if err := v.session.Open(context.WithoutCancel(ctx)); err != nil {
		m.dropViewer(key, v)
		return nil, err
	}
	// A removal or shutdown that ran before Open found an idle session to close.
	if err := m.stillRegistered(key, v); err != nil {
		v.session.Close()
		return nil, err
	}
	v.log.Info("feed opened")
	return v, nil
}

func (m *Monitor) stillRegistered(key viewerKey, v *Viewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewers[key] == v {
		return nil
	}
	if m.closed {
		return ErrMonitorClosed
	}
	if _, err := m.fleet.Get(key.robotID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s/%s", ErrFeedNotFound, key.robotID, key.viewerID)
}

// Feed returns an open viewer.
func (m *Monitor) Feed(robotID, viewerID string) (*Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[viewerKey{robotID, viewerID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrFeedNotFound, robotID, viewerID)
	}
	return v, nil
}

// Feeds returns snapshots of every open feed.
func (m *Monitor) Feeds() []stream.Snapshot {
	m.mu.Lock()
	vs := make([]*Viewer, 0, len(m.viewers))
	for _, v := range m.viewers {
		vs = append(vs, v)
	}
	m.mu.Unlock()
	out := make([]stream.Snapshot, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.session.Snapshot())
	}
	return out
}

// CloseFeed stops a viewer's feed. If that viewer held teleop control for the
// robot, control is released and any held direction stops.
func (m *Monitor) CloseFeed(robotID, viewerID string) error {
	key := viewerKey{robotID, viewerID}
	m.mu.Lock()
	v, ok := m.viewers[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrFeedNotFound, robotID, viewerID)
	}
	m.mu.Unlock()
	m.dropViewer(key, v)
	v.log.Info("feed closed")
	return nil
}

func (m *Monitor) dropViewer(key viewerKey, v *Viewer) {
	m.mu.Lock()
	if m.viewers[key] != v {
		m.mu.Unlock()
		return
	}
	delete(m.viewers, key)
	ch := m.channels[key.robotID]
	controller := m.controllers[key.robotID] == key.viewerID
	if controller {
		delete(m.controllers, key.robotID)
	}
	m.mu.Unlock()

	v.close()
	m.metrics.OpenFeeds.Dec()
	if controller && ch != nil {
		if err := ch.Release(); err != nil && !errors.Is(err, teleop.ErrClosed) {
			v.log.Warn("release teleop on feed close", "err", err)
		}
	}
}

// RobotID returns the robot being viewed.
func (v *Viewer) RobotID() string { return v.robotID }

// ViewerID returns the viewer identity.
func (v *Viewer) ViewerID() string { return v.viewerID }

// Session exposes the feed lifecycle for pause, resume and retry.
func (v *Viewer) Session() *stream.Session { return v.session }

// Frame returns the overlay boxes for the robot's current detections drawn on
// vp. It is empty unless the feed is live. A newer Frame call supersedes an
// unfinished one, and closing the feed ends it.
func (v *Viewer) Frame(ctx context.Context, vp geometry.Viewport) iter.Seq[overlay.Box] {
	if !v.session.Renderable() {
		return func(func(overlay.Box) bool) {}
	}
	seq := v.engine.Update(ctx, vp, v.m.latestDetections(v.robotID))
	sctx := v.session.Context()
	return func(yield func(overlay.Box) bool) {
		for b := range seq {
			if sctx != nil && sctx.Err() != nil {
				return
			}
			if !yield(b) {
				return
			}
		}
	}
}

// observe runs after every session transition.
func (v *Viewer) observe(t stream.Transition) {
	v.m.metrics.StreamTransitions.WithLabelValues(string(t.To)).Inc()
	switch t.To {
	case stream.StateError:
		v.log.Warn("feed failed", "reason", t.Reason)
		if v.m.cfg.Stream.AutoRetry {
			v.scheduleRetry()
		}
	case stream.StateLive:
		v.log.Info("feed live")
	}
}

// scheduleRetry retries after a backoff growing with the attempt count.
func (v *Viewer) scheduleRetry() {
	snap := v.session.Snapshot()
	if snap.Exhausted {
		v.log.Warn("feed unavailable, retries exhausted", "retries", snap.Retries)
		return
	}
	delay := v.m.cfg.Stream.RetryBackoff * time.Duration(snap.Retries)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(delay, func() {
		if err := v.session.Retry(); err != nil && !errors.Is(err, stream.ErrInvalidTransition) {
			v.log.Warn("feed retry", "err", err)
		}
	})
}

func (v *Viewer) close() {
	v.mu.Lock()
	v.closed = true
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.mu.Unlock()
	v.session.Close()
}
