// Package ui implements the interactive terminal frontend: a live service
// list with single-key start/stop actions, backed by a Supervisor and kept
// current through periodic refresh and config file watching.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lordbuffcloud/srv"
	"github.com/lordbuffcloud/srv/internal/config"
)

const refreshEvery = 2 * time.Second

// refreshMsg triggers a registry snapshot refresh
type refreshMsg struct{}

// clearStatusMsg clears the transient status line
type clearStatusMsg struct{}

// opDoneMsg reports the result of an asynchronous start or stop
type opDoneMsg struct {
	op   srv.Operation
	name string
	err  error
}

// configEventMsg wraps a config watch event
type configEventMsg struct {
	ev config.Event
	ok bool
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Start    key.Binding
	StartAll key.Binding
	Stop     key.Binding
	StopAll  key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Start, k.StartAll, k.Stop, k.StopAll, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j", "down"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	StartAll: key.NewBinding(
		key.WithKeys("S"),
		key.WithHelp("S", "start all"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	StopAll: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "stop all"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the bubbletea model for the interactive service list
type Model struct {
	sup   *srv.Supervisor
	watch <-chan config.Event

	rows   []srv.ServiceStatus
	cursor int

	keys keyMap
	help help.Model

	width     int
	height    int
	statusMsg string
	err       error
}

// NewModel builds the interactive model. watch may be nil when config
// watching is unavailable.
func NewModel(sup *srv.Supervisor, watch <-chan config.Event) *Model {
	return &Model{
		sup:   sup,
		watch: watch,
		rows:  sup.ListAll(),
		keys:  keys,
		help:  help.New(),
	}
}

// Init schedules the refresh loop and config watch pump
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refreshTick(), m.waitForConfig())
}

func (m *Model) refreshTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// waitForConfig blocks on the next config watch event
func (m *Model) waitForConfig() tea.Cmd {
	if m.watch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.watch
		return configEventMsg{ev: ev, ok: ok}
	}
}

func (m *Model) startCmd(name string) tea.Cmd {
	return func() tea.Msg {
		err := m.sup.StartOne(context.Background(), name)
		return opDoneMsg{op: srv.OpStart, name: name, err: err}
	}
}

func (m *Model) startAllCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.sup.StartAll(context.Background())
		return opDoneMsg{op: srv.OpStart, name: "all services", err: err}
	}
}

func (m *Model) stopCmd(name string) tea.Cmd {
	return func() tea.Msg {
		err := m.sup.StopOne(context.Background(), name)
		return opDoneMsg{op: srv.OpStop, name: name, err: err}
	}
}

func (m *Model) stopAllCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.sup.StopAll(context.Background())
		return opDoneMsg{op: srv.OpStop, name: "all services", err: err}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, m.refreshTick()

	case opDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.err = msg.err
			return m, m.setStatus(fmt.Sprintf("%s %s failed", msg.op, msg.name))
		}
		m.err = nil
		return m, m.setStatus(fmt.Sprintf("%s %s: ok", msg.op, msg.name))

	case configEventMsg:
		if !msg.ok {
			m.watch = nil
			return m, nil
		}
		cmd := m.waitForConfig()
		if msg.ev.Err != nil {
			m.err = msg.ev.Err
			return m, cmd
		}
		if err := m.sup.Reload(msg.ev.File.Specs); err != nil {
			m.err = err
			return m, cmd
		}
		m.err = nil
		m.refresh()
		return m, tea.Batch(cmd, m.setStatus("configuration reloaded"))

	case clearStatusMsg:
		m.statusMsg = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Start):
		if row := m.selected(); row != nil {
			return m, tea.Batch(
				m.setStatus(fmt.Sprintf("starting %s...", row.Spec.Name)),
				m.startCmd(row.Spec.Name),
			)
		}
		return m, nil

	case key.Matches(msg, m.keys.StartAll):
		return m, tea.Batch(m.setStatus("starting all services..."), m.startAllCmd())

	case key.Matches(msg, m.keys.Stop):
		if row := m.selected(); row != nil {
			return m, tea.Batch(
				m.setStatus(fmt.Sprintf("stopping %s...", row.Spec.Name)),
				m.stopCmd(row.Spec.Name),
			)
		}
		return m, nil

	case key.Matches(msg, m.keys.StopAll):
		return m, tea.Batch(m.setStatus("stopping all services..."), m.stopAllCmd())
	}
	return m, nil
}

func (m *Model) selected() *srv.ServiceStatus {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return &m.rows[m.cursor]
}

func (m *Model) refresh() {
	m.rows = m.sup.ListAll()
	if m.cursor >= len(m.rows) && len(m.rows) > 0 {
		m.cursor = len(m.rows) - 1
	}
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// View renders the service list
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("srv"))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(subtleStyle.Render("no services configured"))
	}
	for i, row := range m.rows {
		line := m.renderRow(row)
		if i == m.cursor {
			b.WriteString(rowSelectedStyle.Render("> " + line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}

	content := panelStyle.Render(b.String())

	var parts []string
	if m.err != nil {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("error: %v", m.err)))
	}
	parts = append(parts, content)
	if m.statusMsg != "" {
		parts = append(parts, warningStyle.Render(m.statusMsg))
	}
	parts = append(parts, statusBarStyle.Render(m.help.View(m.keys)))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) renderRow(row srv.ServiceStatus) string {
	state := srv.StateStopped
	detail := ""
	if row.Proc != nil {
		state = row.Proc.State
		switch {
		case row.Proc.State == srv.StateFailed && row.Proc.Err != nil:
			detail = subtleStyle.Render(row.Proc.Err.Error())
		case row.Proc.PID > 0:
			detail = subtleStyle.Render(fmt.Sprintf("pid %d, up %s",
				row.Proc.PID, time.Since(row.Proc.StartedAt).Round(time.Second)))
		}
	}

	line := fmt.Sprintf("%-20s %s", row.Spec.Name, stateStyle(state).Render(state.String()))
	if detail != "" {
		line += "  " + detail
	}
	return line
}

// Run drives the interactive session until the user quits
func Run(sup *srv.Supervisor, watch <-chan config.Event) error {
	p := tea.NewProgram(NewModel(sup, watch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
