// Package tui renders the fleet and alert queue in the terminal.
package tui

import (
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
)

// Source is the monitor surface the TUI reads and acts on.
type Source interface {
	Robots() []fleet.Robot
	FleetStats() fleet.Stats
	ListAlerts(typeFilter, severityFilter string, includeDismissed bool) ([]alerts.Alert, error)
	DismissAlert(id string) error
}

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// tickMsg asks the model to poll its source.
type tickMsg time.Time

// alertMsg announces a freshly ingested alert.
type alertMsg struct{ alerts.Alert }

// TUI runs the terminal UI and doubles as an alert sink so new alerts show
// up without waiting for the next poll.
type TUI struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// New starts a bubbletea program polling src every refresh. Quitting the UI
// interrupts the process so the caller shuts down with it.
func New(src Source, refresh time.Duration) *TUI {
	u := &TUI{done: make(chan struct{})}
	u.sendSignal.Store(true)
	p := tea.NewProgram(newModel(src, refresh), tea.WithAltScreen())
	u.program = p
	go func() {
		_, _ = p.Run()
		close(u.done)
		if u.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return u
}

// WriteAlert implements monitor.AlertWriter.
func (u *TUI) WriteAlert(a alerts.Alert) error {
	u.program.Send(alertMsg{a})
	return nil
}

// Close shuts down the program and waits for the terminal to be restored.
func (u *TUI) Close() error {
	u.sendSignal.Store(false)
	if u.program != nil {
		u.program.Send(tea.Quit())
	}
	if u.done != nil {
		<-u.done
	}
	return nil
}
