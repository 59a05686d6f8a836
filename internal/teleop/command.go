// Package teleop sends manual-control commands to a single robot.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction of a manual move.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Left     Direction = "left"
	Right    Direction = "right"
)

// Valid reports whether d is one of the four move directions.
func (d Direction) Valid() bool {
	switch d {
	case Forward, Backward, Left, Right:
		return true
	}
	return false
}

// ParseDirection accepts a direction name in any case.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(s))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// Kind of command.
type Kind string

const (
	KindMove       Kind = "move"
	KindReturnHome Kind = "return_home"
	KindSetPatrol  Kind = "set_patrol"
)

// Command is one message on the teleop egress.
type Command struct {
	RobotID   string    `json:"robot_id"`
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction,omitempty"`
	Enabled   bool      `json:"enabled"`
	Seq       uint64    `json:"seq"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Move builds a move command.
func Move(d Direction) Command { return Command{Kind: KindMove, Direction: d} }

// ReturnHome builds a return-home command.
func ReturnHome() Command { return Command{Kind: KindReturnHome} }

// SetPatrol builds a patrol toggle.
func SetPatrol(enabled bool) Command { return Command{Kind: KindSetPatrol, Enabled: enabled} }

// Transport delivers commands to robots.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, cmd Command) error

func (f TransportFunc) Send(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

var (
	ErrTransmission     = errors.New("command transmission failed")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrClosed           = errors.New("teleop channel closed")
)

// TransmissionError is returned when a discrete command could not be delivered.
type TransmissionError struct {
	RobotID  string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("send %s to %s failed after %d attempt(s): %v", e.Kind, e.RobotID, e.Attempts, e.Err)
}

func (e *TransmissionError) Unwrap() []error { return []error{ErrTransmission, e.Err} }
