// Package stream implements the per-viewer video feed lifecycle.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"robotops/internal/logging"
)

// State of a stream session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StatePaused     State = "paused"
	StateError      State = "error"
)

// DefaultMaxRetries bounds Retry when Config.MaxRetries is unset. Retry is
// allowed while the failure count is at most the maximum, so with the default
// an open followed by three failures still reconnects and a fourth exhausts.
const DefaultMaxRetries = 3

var (
	ErrAlreadyOpen       = errors.New("stream already open")
	ErrInvalidTransition = errors.New("invalid stream transition")
	ErrRetriesExhausted  = errors.New("stream retries exhausted")
	ErrStreamFailure     = errors.New("stream failure")
)

// FailureError carries the last source failure of a session.
type FailureError struct {
	RobotID string
	Reason  string
	Retries int
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("stream %s failed after %d attempts: %s", e.RobotID, e.Retries, e.Reason)
}

func (e *FailureError) Unwrap() error { return ErrStreamFailure }

// Transition is reported to observers after every state change.
type Transition struct {
	RobotID  string
	ViewerID string
	From     State
	To       State
	Reason   string
}

// Config tunes a Session.
type Config struct {
	MaxRetries int
	Observer   func(Transition)
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	RobotID    string `json:"robot_id"`
	ViewerID   string `json:"viewer_id"`
	State      State  `json:"state"`
	Retries    int    `json:"retries"`
	MaxRetries int    `json:"max_retries"`
	Reason     string `json:"reason,omitempty"`
	Exhausted  bool   `json:"exhausted"`
	Handle     uint64 `json:"handle"`
}

// Session is the lifecycle controller for one robot/viewer feed. All methods are
// safe for concurrent use; transitions are linearized by the session mutex.
type Session struct {
	desc     Descriptor
	factory  SourceFactory
	max      int
	observer func(Transition)
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	retries int
	reason  string
	gen     uint64
	handle  Source
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSession creates an idle session. factory is called once per Open or Retry.
func NewSession(desc Descriptor, factory SourceFactory, cfg Config, logger *slog.Logger) *Session {
	max := cfg.MaxRetries
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return &Session{
		desc:     desc,
		factory:  factory,
		max:      max,
		observer: cfg.Observer,
		log:      logging.OrDefault(logger).With("robot_id", desc.RobotID, "viewer_id", desc.ViewerID),
		state:    StateIdle,
	}
}

// Descriptor returns what the session streams.
func (s *Session) Descriptor() Descriptor { return s.desc }

// Open starts connecting. It returns once the source has been asked to open;
// completion arrives through OnReady or OnFailure.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.retries = 0
	s.reason = ""
	h, gen := s.newHandleLocked()
	sctx := s.ctx
	t := s.setLocked(StateConnecting)
	s.mu.Unlock()

	s.notify(t)
	s.submit(sctx, h, gen)
	return nil
}

// OnReady marks the current handle connected.
func (s *Session) OnReady() { s.ready(0) }

// OnFailure moves the session to Error and counts an attempt.
func (s *Session) OnFailure(reason string) { s.fail(0, reason) }

// Retry reconnects with a fresh handle while attempts remain. Once the retry
// count exceeds the maximum the session stays in Error.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.state != StateError {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, st)
	}
	if s.retries > s.max {
		err := &FailureError{RobotID: s.desc.RobotID, Reason: s.reason, Retries: s.retries}
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}
	old := s.handle
	s.handle = nil
	h, gen := s.newHandleLocked()
	sctx := s.ctx
	t := s.setLocked(StateConnecting)
	s.mu.Unlock()

	s.teardown(old)
	s.notify(t)
	s.submit(sctx, h, gen)
	return nil
}

// Pause freezes a live feed. Pausing a paused feed is a no-op.
func (s *Session) Pause() error {
	return s.toggle(StateLive, StatePaused)
}

// Resume unfreezes a paused feed. Resuming a live feed is a no-op.
func (s *Session) Resume() error {
	return s.toggle(StatePaused, StateLive)
}

// Close returns the session to Idle, releasing the source and cancelling the
// session context. Closing an idle session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	old := s.handle
	s.handle = nil
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	t := s.setLocked(StateIdle)
	s.mu.Unlock()

	s.teardown(old)
	s.notify(t)
}

// Context is cancelled when the session closes. It is nil before the first Open.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Renderable reports whether frames should be drawn.
func (s *Session) Renderable() bool {
	return s.State() == StateLive
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RobotID:    s.desc.RobotID,
		ViewerID:   s.desc.ViewerID,
		State:      s.state,
		Retries:    s.retries,
		MaxRetries: s.max,
		Reason:     s.reason,
		Exhausted:  s.state == StateError && s.retries > s.max,
		Handle:     s.gen,
	}
}

func (s *Session) toggle(from, to State) error {
	s.mu.Lock()
	switch s.state {
	case to:
		s.mu.Unlock()
		return nil
	case from:
		t := s.setLocked(to)
		s.mu.Unlock()
		s.notify(t)
		return nil
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, st, to)
	}
}

// ready and fail take the handle generation; gen 0 means the current handle.
func (s *Session) ready(gen uint64) {
	s.mu.Lock()
	if (gen != 0 && gen != s.gen) || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.retries = 0
	s.reason = ""
	t := s.setLocked(StateLive)
	s.mu.Unlock()
	s.notify(t)
}

func (s *Session) fail(gen uint64, reason string) {
	s.mu.Lock()
	if (gen != 0 && gen != s.gen) || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	// A handle reports its failure once; a second report for the same
	// generation, such as a synchronous Fail followed by an Open error, is
	// not another attempt.
	if gen != 0 && s.state == StateError {
		s.mu.Unlock()
		return
	}
	s.retries++
	s.reason = reason
	old := s.handle
	s.handle = nil
	t := s.setLocked(StateError)
	t.Reason = reason
	s.mu.Unlock()

	s.teardown(old)
	s.notify(t)
}

func (s *Session) newHandleLocked() (Source, uint64) {
	s.gen++
	s.handle = s.factory(s.desc)
	return s.handle, s.gen
}

func (s *Session) submit(ctx context.Context, h Source, gen uint64) {
	cb := Callbacks{
		Ready: func() { s.ready(gen) },
		Fail:  func(reason string) { s.fail(gen, reason) },
	}
	if err := h.Open(ctx, s.desc, cb); err != nil {
		s.fail(gen, err.Error())
	}
}

func (s *Session) teardown(h Source) {
	if h == nil {
		return
	}
	if err := h.Teardown(); err != nil {
		s.log.Warn("source teardown failed", "err", err)
	}
}

func (s *Session) setLocked(to State) Transition {
	t := Transition{RobotID: s.desc.RobotID, ViewerID: s.desc.ViewerID, From: s.state, To: to}
	s.state = to
	return t
}

func (s *Session) notify(t Transition) {
	if t.From == t.To {
		return
	}
	s.log.Debug("stream transition", "from", t.From, "to", t.To, "reason", t.Reason)
	if s.observer != nil {
		s.observer(t)
	}
}
