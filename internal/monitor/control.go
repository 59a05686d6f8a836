package monitor

import (
	"fmt"

	"robotops/internal/metrics"
	"robotops/internal/teleop"
)

// Teleop returns the robot's command channel, starting it on first use.
func (m *Monitor) Teleop(robotID string) (*teleop.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMonitorClosed
	}
	if _, err := m.fleet.Get(robotID); err != nil {
		return nil, err
	}
	if ch, ok := m.channels[robotID]; ok {
		return ch, nil
	}
	tc := m.cfg.Teleop
	ch := teleop.NewChannel(robotID, m.transport, teleop.Config{
		Cadence:          tc.Cadence,
		CommandTimeout:   tc.CommandTimeout,
		DiscreteAttempts: tc.DiscreteAttempts,
		Now:              m.now,
		OnSend: func(cmd teleop.Command, err error) {
			m.metrics.TeleopCommands.WithLabelValues(string(cmd.Kind), metrics.Result(err)).Inc()
		},
	}, m.log)
	m.channels[robotID] = ch
	if m.sinks.Commands != nil {
		m.audit.Add(1)
		go m.auditCommands(ch)
	}
	return ch, nil
}

// auditCommands copies every command the channel emits into the command sink.
func (m *Monitor) auditCommands(ch *teleop.Channel) {
	defer m.audit.Done()
	for cmd := range ch.Commands(m.ctx) {
		if err := m.sinks.Commands.WriteCommand(cmd); err != nil {
			m.sinkError("command", err)
		}
	}
}

// AcquireTeleop gives viewerID control of the robot. Only one viewer controls
// a robot at a time; the viewer must have the robot's feed open.
func (m *Monitor) AcquireTeleop(robotID, viewerID string) (*teleop.Channel, error) {
	ch, err := m.Teleop(robotID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.viewers[viewerKey{robotID, viewerID}]; !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrFeedNotFound, robotID, viewerID)
	}
	if cur, ok := m.controllers[robotID]; ok && cur != viewerID {
		return nil, fmt.Errorf("%w: %s held by %s", ErrTeleopBusy, robotID, cur)
	}
	m.controllers[robotID] = viewerID
	return ch, nil
}

// ReleaseTeleop gives up control and stops any held direction.
func (m *Monitor) ReleaseTeleop(robotID, viewerID string) error {
	m.mu.Lock()
	cur, ok := m.controllers[robotID]
	if !ok || cur != viewerID {
		m.mu.Unlock()
		return nil
	}
	delete(m.controllers, robotID)
	ch := m.channels[robotID]
	m.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Release()
}

// Controller returns the viewer controlling robotID, or "".
func (m *Monitor) Controller(robotID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controllers[robotID]
}
