package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"robotops/internal/alerts"
	"robotops/internal/fleet"
)

const (
	maxAlertSectionPct = 0.5
	defaultRefresh     = time.Second
)

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	onColor       = lipgloss.Color("10")
	offColor      = lipgloss.Color("9")
)

type model struct {
	src     Source
	refresh time.Duration

	table table.Model
	vp    viewport.Model

	robots []fleet.Robot
	stats  fleet.Stats
	alerts []alerts.Alert
	latest *alerts.Alert
	err    error

	typeIdx          int
	severityIdx      int
	includeDismissed bool
	cursor           int
	wrap             bool
	help             bool

	width, height int
}

func newModel(src Source, refresh time.Duration) model {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	cols := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Name", Width: 18},
		{Title: "Model", Width: 8},
		{Title: "Status", Width: 11},
		{Title: "Battery", Width: 8},
		{Title: "Signal", Width: 7},
		{Title: "Location", Width: 20},
	}
	m := model{
		src:     src,
		refresh: refresh,
		table:   table.New(table.WithColumns(cols)),
		vp:      viewport.New(0, 0),
	}
	m.poll()
	return m
}

func (m model) Init() tea.Cmd { return m.tick() }

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
	case tickMsg:
		m.poll()
		m.layout()
		return m, m.tick()
	case alertMsg:
		a := msg.Alert
		m.latest = &a
		m.poll()
		m.layout()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "h", "?":
			m.help = true
		case "t":
			m.typeIdx = (m.typeIdx + 1) % (len(alerts.Types) + 1)
			m.cursor = 0
			m.poll()
		case "s":
			m.severityIdx = (m.severityIdx + 1) % (len(alerts.Severities) + 1)
			m.cursor = 0
			m.poll()
		case "d":
			m.includeDismissed = !m.includeDismissed
			m.poll()
		case "x":
			if a, ok := m.selected(); ok {
				m.err = m.src.DismissAlert(a.ID)
				m.poll()
			}
		case "j", "down":
			if m.cursor < len(m.alerts)-1 {
				m.cursor++
			}
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "w":
			m.wrap = !m.wrap
		default:
			return m, nil
		}
		m.layout()
	}
	return m, nil
}

func (m model) typeFilter() string {
	if m.typeIdx == 0 {
		return alerts.All
	}
	return string(alerts.Types[m.typeIdx-1])
}

func (m model) severityFilter() string {
	if m.severityIdx == 0 {
		return alerts.All
	}
	return string(alerts.Severities[m.severityIdx-1])
}

func (m model) selected() (alerts.Alert, bool) {
	if m.cursor < 0 || m.cursor >= len(m.alerts) {
		return alerts.Alert{}, false
	}
	return m.alerts[m.cursor], true
}

// poll refreshes the robot table and alert list from the source.
func (m *model) poll() {
	m.robots = m.src.Robots()
	m.stats = m.src.FleetStats()
	list, err := m.src.ListAlerts(m.typeFilter(), m.severityFilter(), m.includeDismissed)
	if err != nil {
		m.err = err
		return
	}
	m.alerts = list
	if m.cursor >= len(m.alerts) {
		m.cursor = max(len(m.alerts)-1, 0)
	}

	rows := make([]table.Row, 0, len(m.robots))
	for _, r := range m.robots {
		rows = append(rows, table.Row{
			r.ID,
			r.Name,
			r.Model,
			string(r.Status),
			fmt.Sprintf("%.0f%%", r.Telemetry.Battery),
			fmt.Sprintf("%.0f", r.Telemetry.Signal),
			r.Location.Name,
		})
	}
	m.table.SetRows(rows)
}

func (m *model) layout() {
	m.table.SetHeight(len(m.robots) + 1)
	maxAlerts := int(float64(m.height) * maxAlertSectionPct)
	h := m.height - lipgloss.Height(m.table.View()) - lipgloss.Height(m.renderBottom()) - 4
	if h > maxAlerts && maxAlerts > 0 {
		h = maxAlerts
	}
	m.vp.Height = max(h, 1)
	m.vp.SetContent(m.renderAlerts())
	// keep the cursor visible
	if m.cursor < m.vp.YOffset {
		m.vp.SetYOffset(m.cursor)
	} else if m.cursor >= m.vp.YOffset+m.vp.Height {
		m.vp.SetYOffset(m.cursor - m.vp.Height + 1)
	}
}

func (m model) renderAlerts() string {
	if len(m.alerts) == 0 {
		return dimStyle.Render("no alerts")
	}
	lines := make([]string, 0, len(m.alerts))
	for i, a := range m.alerts {
		badge := lipgloss.NewStyle().Foreground(lipgloss.Color(alerts.SeverityColor(a.Severity))).Render(fmt.Sprintf("%-6s", a.Severity))
		kind := lipgloss.NewStyle().Foreground(lipgloss.Color(alerts.TypeColor(a.Type))).Render(fmt.Sprintf("%-6s", a.Type))
		line := fmt.Sprintf("%s %s %s %s", a.Timestamp.Format(time.TimeOnly), badge, kind, a.Title)
		if a.Message != "" {
			line += dimStyle.Render(" - " + a.Message)
		}
		if a.Dismissed {
			line += dimStyle.Render(" (dismissed)")
		}
		if m.wrap && m.vp.Width > 0 {
			line = wordwrap.String(line, m.vp.Width)
		}
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if m.help {
		return renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 1))
	sections := []string{
		m.renderStats(),
		m.table.View(),
		divider,
		fmt.Sprintf("Alerts [type=%s severity=%s]", m.typeFilter(), m.severityFilter()),
		m.vp.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m model) renderStats() string {
	s := m.stats
	line := fmt.Sprintf("FLEET robots=%d active=%d patrolling=%d offline=%d avg_batt=%.1f%%",
		s.Total, s.Active, s.Patrolling, s.Offline, s.AvgBattery)
	if m.latest != nil {
		c := lipgloss.Color(alerts.SeverityColor(m.latest.Severity))
		line += " | " + lipgloss.NewStyle().Foreground(c).Render("latest: "+m.latest.Title)
	}
	return line
}

func indicator(on bool) string {
	c := offColor
	if on {
		c = onColor
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m model) renderBottom() string {
	line := fmt.Sprintf("Dismissed %s | Wrap %s | t type | s severity | x dismiss | h help | q quit",
		indicator(m.includeDismissed), indicator(m.wrap))
	if m.err != nil {
		line += "\n" + lipgloss.NewStyle().Foreground(offColor).Render("error: "+m.err.Error())
	}
	return line
}

func renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" t  cycle alert type filter",
		" s  cycle severity filter",
		" d  toggle dismissed alerts",
		" x  dismiss selected alert",
		" j/k or up/down  move selection",
		" w  toggle wrap",
		" h/? toggle this help view",
	}
	return strings.Join(lines, "\n")
}
