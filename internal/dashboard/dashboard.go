// Package dashboard renders a live, refreshing view of the Orchestrator's
// fleet status (spec.md §6.3's `momentum dashboard` command). It reads
// orchestrator_status.json on a fixed tick rather than sharing memory with
// the supervisor process, the same cross-process status model
// internal/state.Store's status.go was built for. Grounded on
// Xinguang-agentic-coder/pkg/tui/app.go's bubbletea Model/tickMsg pattern.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelalgo/momentum/internal/state"
)

const refreshInterval = 1 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	crashedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type tickMsg time.Time

type statusMsg struct {
	status state.OrchestratorStatus
	err    error
}

// Model is the bubbletea model backing `momentum dashboard`.
type Model struct {
	store *state.Store
	table table.Model

	lastUpdated time.Time
	lastErr     error
	width       int
}

// New constructs a dashboard Model that polls store on a fixed interval.
func New(store *state.Store) *Model {
	columns := []table.Column{
		{Title: "Service", Width: 20},
		{Title: "State", Width: 10},
		{Title: "PID", Width: 8},
		{Title: "Uptime", Width: 10},
		{Title: "Restarts", Width: 9},
		{Title: "Last Error", Width: 40},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(10))
	return &Model{store: store, table: t}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) poll() tea.Cmd {
	return func() tea.Msg {
		status, err := m.store.LoadStatus()
		return statusMsg{status: status, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.poll(), tick())
	case statusMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.applyStatus(msg.status)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) applyStatus(status state.OrchestratorStatus) {
	m.lastUpdated = status.UpdatedAt
	names := make([]string, 0, len(status.Services))
	for name := range status.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		svc := status.Services[name]
		rows = append(rows, table.Row{
			name,
			string(svc.State),
			pidCell(svc.PID),
			uptimeCell(svc),
			fmt.Sprintf("%d", svc.RestartCount),
			svc.LastError,
		})
	}
	m.table.SetRows(rows)
}

func pidCell(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func uptimeCell(svc state.ServiceStatus) string {
	if svc.State != state.ServiceRunning || svc.StartedAt.IsZero() {
		return "-"
	}
	return time.Since(svc.StartedAt).Round(time.Second).String()
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("momentum orchestrator"))
	b.WriteString("\n\n")
	b.WriteString(renderStyledTable(m.table))
	b.WriteString("\n\n")
	if m.lastErr != nil {
		b.WriteString(crashedStyle.Render(fmt.Sprintf("status read failed: %v", m.lastErr)))
	} else {
		b.WriteString(footerStyle.Render(fmt.Sprintf("updated %s · press q to quit", m.lastUpdated.Format(time.Kitchen))))
	}
	return b.String()
}

// renderStyledTable colors each row by service state, matching the rest of
// the package's running/crashed/stopped palette.
func renderStyledTable(t table.Model) string {
	out := t.View()
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		switch {
		case strings.Contains(line, string(state.ServiceRunning)):
			lines[i] = runningStyle.Render(line)
		case strings.Contains(line, string(state.ServiceCrashed)):
			lines[i] = crashedStyle.Render(line)
		case strings.Contains(line, string(state.ServiceStopped)), strings.Contains(line, string(state.ServiceStopping)):
			lines[i] = stoppedStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the bubbletea program, blocking until the user quits.
func Run(store *state.Store) error {
	p := tea.NewProgram(New(store))
	_, err := p.Run()
	return err
}
