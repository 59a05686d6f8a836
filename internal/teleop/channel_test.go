package teleop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"robotops/internal/logging"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []Command
	fail func(Command) error
}

func (r *recordingTransport) Send(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, cmd)
	if r.fail != nil {
		return r.fail(cmd)
	}
	return nil
}

func (r *recordingTransport) snapshot() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.sent...)
}

func count(cmds []Command, kind Kind, d Direction) int {
	n := 0
	for _, c := range cmds {
		if c.Kind == kind && c.Direction == d {
			n++
		}
	}
	return n
}

func newTestChannel(tr Transport, cadence time.Duration) *Channel {
	return NewChannel("r1", tr, Config{Cadence: cadence, CommandTimeout: 100 * time.Millisecond}, logging.Discard())
}

func TestPressEmitsImmediatelyAndRepeats(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, 20*time.Millisecond)
	defer c.Close()

	if err := c.PressDirection(Forward); err != nil {
		t.Fatalf("press: %v", err)
	}
	if n := count(tr.snapshot(), KindMove, Forward); n != 1 {
		t.Fatalf("expected immediate move, got %d", n)
	}
	time.Sleep(110 * time.Millisecond)
	if n := count(tr.snapshot(), KindMove, Forward); n < 3 {
		t.Fatalf("expected repeated moves, got %d", n)
	}
	if c.Active() != Forward {
		t.Fatalf("active=%q", c.Active())
	}
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	after := len(tr.snapshot())
	time.Sleep(80 * time.Millisecond)
	if got := len(tr.snapshot()); got != after {
		t.Fatalf("moves after release: %d -> %d", after, got)
	}
}

func TestPressSameDirectionNoop(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, time.Hour)
	defer c.Close()
	_ = c.PressDirection(Left)
	_ = c.PressDirection(Left)
	if n := count(tr.snapshot(), KindMove, Left); n != 1 {
		t.Fatalf("expected one move, got %d", n)
	}
}

func TestPressSwitchesDirection(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, 20*time.Millisecond)
	defer c.Close()
	_ = c.PressDirection(Left)
	_ = c.PressDirection(Right)
	time.Sleep(60 * time.Millisecond)
	_ = c.Release()
	cmds := tr.snapshot()
	if count(cmds, KindMove, Left) != 1 {
		t.Fatalf("left should stop after the switch: %+v", cmds)
	}
	if count(cmds, KindMove, Right) < 2 {
		t.Fatalf("right should be ticking: %+v", cmds)
	}
	for i := 1; i < len(cmds); i++ {
		if cmds[i].Seq <= cmds[i-1].Seq {
			t.Fatalf("seq not increasing: %+v", cmds)
		}
	}
}

func TestReturnHomeCancelsDirection(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, 20*time.Millisecond)
	defer c.Close()
	_ = c.PressDirection(Backward)
	if err := c.ReturnHome(context.Background()); err != nil {
		t.Fatalf("return home: %v", err)
	}
	if c.Active() != "" {
		t.Fatalf("direction should be cleared")
	}
	before := len(tr.snapshot())
	time.Sleep(60 * time.Millisecond)
	cmds := tr.snapshot()
	if len(cmds) != before {
		t.Fatalf("moves continued after return home")
	}
	if count(cmds, KindReturnHome, "") != 1 {
		t.Fatalf("expected exactly one return home: %+v", cmds)
	}
}

func TestReturnHomeFailureSurfacedOnce(t *testing.T) {
	boom := errors.New("link down")
	tr := &recordingTransport{fail: func(Command) error { return boom }}
	c := NewChannel("r1", tr, Config{DiscreteAttempts: 2}, nil)
	defer c.Close()
	err := c.ReturnHome(context.Background())
	var te *TransmissionError
	if !errors.As(err, &te) || !errors.Is(err, ErrTransmission) || !errors.Is(err, boom) {
		t.Fatalf("unexpected error %v", err)
	}
	if te.Attempts != 2 || len(tr.snapshot()) != 2 {
		t.Fatalf("expected two attempts, got %d sends", len(tr.snapshot()))
	}
}

func TestSetPatrolKeepsDirection(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, time.Hour)
	defer c.Close()
	_ = c.PressDirection(Right)
	if err := c.SetPatrol(context.Background(), true); err != nil {
		t.Fatalf("set patrol: %v", err)
	}
	if c.Active() != Right {
		t.Fatalf("patrol toggle must not clear the direction")
	}
	cmds := tr.snapshot()
	last := cmds[len(cmds)-1]
	if last.Kind != KindSetPatrol || !last.Enabled || last.RobotID != "r1" {
		t.Fatalf("unexpected command %+v", last)
	}
}

func TestMoveFailuresKeepTicking(t *testing.T) {
	tr := &recordingTransport{fail: func(Command) error { return errors.New("drop") }}
	c := newTestChannel(tr, 15*time.Millisecond)
	defer c.Close()
	_ = c.PressDirection(Forward)
	time.Sleep(80 * time.Millisecond)
	if n := count(tr.snapshot(), KindMove, Forward); n < 3 {
		t.Fatalf("ticking stopped after failure: %d", n)
	}
}

func TestCloseStopsTicker(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, 10*time.Millisecond)
	_ = c.PressDirection(Forward)
	c.Close()
	c.Close()
	n := len(tr.snapshot())
	time.Sleep(50 * time.Millisecond)
	if len(tr.snapshot()) != n {
		t.Fatalf("ticks after close")
	}
	if err := c.PressDirection(Left); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestInvalidDirection(t *testing.T) {
	c := newTestChannel(&recordingTransport{}, time.Hour)
	defer c.Close()
	if err := c.PressDirection("up"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
	if _, err := ParseDirection("FORWARD"); err != nil {
		t.Fatalf("ParseDirection: %v", err)
	}
}

func TestCommandsSubscription(t *testing.T) {
	tr := &recordingTransport{}
	c := newTestChannel(tr, time.Hour)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Command, 4)
	ready := make(chan struct{})
	go func() {
		close(ready)
		for cmd := range c.Commands(ctx) {
			got <- cmd
		}
		close(got)
	}()
	<-ready
	// Subscription starts when ranging begins; give it a moment to register.
	deadline := time.Now().Add(time.Second)
	for {
		c.subMu.Lock()
		n := len(c.subs)
		c.subMu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_ = c.SetPatrol(context.Background(), false)
	select {
	case cmd := <-got:
		if cmd.Kind != KindSetPatrol || cmd.Enabled {
			t.Fatalf("unexpected command %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not receive command")
	}
	cancel()
	for range got {
	}
}

// slowTransport takes a fixed time per send and ignores ctx, noting whether a
// send started after the switched flag was raised.
type slowTransport struct {
	delay    time.Duration
	watch    Direction
	switched atomic.Bool
	late     atomic.Int32
}

func (s *slowTransport) Send(_ context.Context, cmd Command) error {
	if s.switched.Load() && cmd.Kind == KindMove && cmd.Direction == s.watch {
		s.late.Add(1)
	}
	time.Sleep(s.delay)
	return nil
}

func TestSwitchDirectionNeverSendsStaleMoveOnSlowTransport(t *testing.T) {
	for trial := range 10 {
		tr := &slowTransport{delay: 30 * time.Millisecond, watch: Forward}
		c := newTestChannel(tr, 5*time.Millisecond)
		if err := c.PressDirection(Forward); err != nil {
			t.Fatalf("press forward: %v", err)
		}
		time.Sleep(40 * time.Millisecond)
		if err := c.PressDirection(Left); err != nil {
			t.Fatalf("press left: %v", err)
		}
		tr.switched.Store(true)
		time.Sleep(60 * time.Millisecond)
		c.Close()
		if n := tr.late.Load(); n != 0 {
			t.Fatalf("trial %d: %d forward moves started after switching left", trial, n)
		}
	}
}

func TestReleaseNeverSendsStaleMoveOnSlowTransport(t *testing.T) {
	tr := &slowTransport{delay: 30 * time.Millisecond, watch: Forward}
	c := newTestChannel(tr, 5*time.Millisecond)
	defer c.Close()
	if err := c.PressDirection(Forward); err != nil {
		t.Fatalf("press: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	tr.switched.Store(true)
	time.Sleep(60 * time.Millisecond)
	if n := tr.late.Load(); n != 0 {
		t.Fatalf("%d forward moves started after release", n)
	}
}

// blockingTransport holds every send until its context ends.
type blockingTransport struct{ sends atomic.Int32 }

func (b *blockingTransport) Send(ctx context.Context, _ Command) error {
	b.sends.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestReleaseDoesNotWaitForBlockedMove(t *testing.T) {
	tr := &blockingTransport{}
	c := NewChannel("r1", tr, Config{Cadence: 5 * time.Millisecond, CommandTimeout: 300 * time.Millisecond}, logging.Discard())
	defer c.Close()

	// the immediate move blocks for the full timeout
	start := time.Now()
	if err := c.PressDirection(Forward); err != nil {
		t.Fatalf("press: %v", err)
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Fatalf("immediate move should block on the transport")
	}
	// a cadence move is now blocked inside Send
	time.Sleep(20 * time.Millisecond)
	start = time.Now()
	if err := c.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if d := time.Since(start); d > 150*time.Millisecond {
		t.Fatalf("release took %v", d)
	}
	if c.Active() != "" {
		t.Fatalf("active=%q after release", c.Active())
	}
}
