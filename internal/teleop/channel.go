package teleop

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"robotops/internal/logging"
)

const (
	DefaultCadence        = 150 * time.Millisecond
	DefaultCommandTimeout = 500 * time.Millisecond
	subscriberBuffer      = 64
)

// Config tunes a Channel.
type Config struct {
	Cadence          time.Duration
	CommandTimeout   time.Duration
	DiscreteAttempts int
	// OnSend observes every transmission attempt outcome.
	OnSend func(cmd Command, err error)
	Now    func() time.Time
}

type opKind int

const (
	opPress opKind = iota
	opRelease
	opHome
	opPatrol
	opActive
)

type request struct {
	op      opKind
	ctx     context.Context
	dir     Direction
	enabled bool
	reply   chan reply
}

type reply struct {
	err    error
	active Direction
}

// Channel is the command path to one robot. A single goroutine owns the active
// direction; public methods message it. Cadence moves run on a separate mover
// goroutine per press so a slow transport never delays a request, and a
// superseded mover is drained before the request that replaced it returns.
type Channel struct {
	robotID  string
	tr       Transport
	cadence  time.Duration
	timeout  time.Duration
	attempts int
	onSend   func(Command, error)
	now      func() time.Time
	log      *slog.Logger

	reqs      chan request
	done      chan struct{}
	exited    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	seq atomic.Uint64

	// moveMu serializes move sends; holding it after cancelling a mover
	// guarantees that mover starts no further Send.
	moveMu sync.Mutex
	movers sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Command
	nextSub int
}

// NewChannel starts the channel goroutine for robotID. Call Close to stop it.
func NewChannel(robotID string, tr Transport, cfg Config, logger *slog.Logger) *Channel {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.DiscreteAttempts <= 0 {
		cfg.DiscreteAttempts = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		robotID:  robotID,
		tr:       tr,
		cadence:  cfg.Cadence,
		timeout:  cfg.CommandTimeout,
		attempts: cfg.DiscreteAttempts,
		onSend:   cfg.OnSend,
		now:      cfg.Now,
		log:      logging.OrDefault(logger).With("robot_id", robotID),
		reqs:     make(chan request),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		subs:     map[int]chan Command{},
	}
	go c.run()
	return c
}

// RobotID returns the robot this channel drives.
func (c *Channel) RobotID() string { return c.robotID }

// PressDirection starts continuous movement in d: one move immediately, then
// one per cadence until Release or another press. Pressing the active
// direction again changes nothing.
func (c *Channel) PressDirection(d Direction) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, d)
	}
	_, err := c.call(context.Background(), request{op: opPress, dir: d})
	return err
}

// Release stops continuous movement.
func (c *Channel) Release() error {
	_, err := c.call(context.Background(), request{op: opRelease})
	return err
}

// ReturnHome stops any movement and sends one return-home command.
func (c *Channel) ReturnHome(ctx context.Context) error {
	_, err := c.call(ctx, request{op: opHome, ctx: ctx})
	return err
}

// SetPatrol sends one patrol toggle without touching the active direction.
func (c *Channel) SetPatrol(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, request{op: opPatrol, ctx: ctx, enabled: enabled})
	return err
}

// Active returns the held direction, or "" when none.
func (c *Channel) Active() Direction {
	r, err := c.call(context.Background(), request{op: opActive})
	if err != nil {
		return ""
	}
	return r.active
}

// Close stops the cadence timer and the channel goroutine. It is idempotent.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	<-c.exited
}

// Commands yields every command emitted after ranging begins. Each range is an
// independent subscription; it ends when ctx is done or the channel closes.
func (c *Channel) Commands(ctx context.Context) iter.Seq[Command] {
	return func(yield func(Command) bool) {
		ch := make(chan Command, subscriberBuffer)
		id := c.subscribe(ch)
		defer c.unsubscribe(id)
		for {
			select {
			case cmd := <-ch:
				if !yield(cmd) {
					return
				}
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}
}

func (c *Channel) call(ctx context.Context, r request) (reply, error) {
	r.reply = make(chan reply, 1)
	select {
	case c.reqs <- r:
	case <-c.done:
		return reply{}, ErrClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case rep := <-r.reply:
		return rep, rep.err
	case <-c.done:
		return reply{}, ErrClosed
	}
}

func (c *Channel) run() {
	defer close(c.exited)
	var (
		active      Direction
		cancelMoves context.CancelFunc
	)
	stop := func() {
		if cancelMoves != nil {
			cancelMoves()
			cancelMoves = nil
			c.moveMu.Lock()
			// wait out an in-flight move
			c.moveMu.Unlock()
		}
		active = ""
	}
	defer c.movers.Wait()
	defer stop()

	for {
		select {
		case <-c.done:
			return
		case r := <-c.reqs:
			var rep reply
			switch r.op {
			case opPress:
				if r.dir != active {
					stop()
					active = r.dir
					var ctx context.Context
					ctx, cancelMoves = context.WithCancel(c.ctx)
					c.sendMove(ctx, active)
					c.movers.Add(1)
					go c.tickMoves(ctx, active)
				}
			case opRelease:
				stop()
			case opHome:
				stop()
				rep.err = c.sendDiscrete(r.ctx, ReturnHome())
			case opPatrol:
				rep.err = c.sendDiscrete(r.ctx, SetPatrol(r.enabled))
			case opActive:
				rep.active = active
			}
			r.reply <- rep
		}
	}
}

// tickMoves repeats d every cadence until ctx is cancelled.
func (c *Channel) tickMoves(ctx context.Context, d Direction) {
	defer c.movers.Done()
	ticker := time.NewTicker(c.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendMove(ctx, d)
		}
	}
}

func (c *Channel) stamp(cmd Command) Command {
	cmd.RobotID = c.robotID
	cmd.Seq = c.seq.Add(1)
	cmd.IssuedAt = c.now()
	return cmd
}

func (c *Channel) sendMove(ctx context.Context, d Direction) {
	c.moveMu.Lock()
	defer c.moveMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	cmd := c.stamp(Move(d))
	if err := c.transmit(ctx, cmd); err != nil && ctx.Err() == nil {
		c.log.Warn("move command failed", "direction", d, "seq", cmd.Seq, "err", err)
	}
}

func (c *Channel) sendDiscrete(ctx context.Context, cmd Command) error {
	cmd = c.stamp(cmd)
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = c.transmit(ctx, cmd); err == nil {
			return nil
		}
		c.log.Debug("command attempt failed", "kind", cmd.Kind, "attempt", attempt, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return &TransmissionError{RobotID: c.robotID, Kind: cmd.Kind, Attempts: c.attempts, Err: err}
}

func (c *Channel) transmit(ctx context.Context, cmd Command) error {
	if ctx == nil {
		ctx = c.ctx
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.tr.Send(ctx, cmd)
	if c.onSend != nil {
		c.onSend(cmd, err)
	}
	c.publish(cmd)
	return err
}

func (c *Channel) subscribe(ch chan Command) int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = ch
	return c.nextSub
}

func (c *Channel) unsubscribe(id int) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, id)
}

func (c *Channel) publish(cmd Command) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- cmd:
		default:
			c.log.Debug("command subscriber lagging, dropping", "seq", cmd.Seq)
		}
	}
}
