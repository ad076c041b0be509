package solve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tutor-ai/internal/adapter/tui/components"
	"tutor-ai/internal/adapter/tui/theme"
	"tutor-ai/internal/adapter/tui/uxerror"
	"tutor-ai/internal/domain"
)

// Deps are the inputs and callbacks of the solve view.
type Deps struct {
	Subject domain.Subject
	Input   string
	Agents  []domain.AgentKind
	Backend string
	// Cancel aborts the run when the user quits. Can be nil.
	Cancel context.CancelFunc
	// Speak replays the run's audio. Can be nil.
	Speak func() error
	// StopAudio halts playback. Can be nil.
	StopAudio func()
}

// Model is the root Bubble Tea model for one run.
type Model struct {
	deps Deps

	panes     []components.AgentPaneModel
	focus     int
	spinner   spinner.Model
	statusBar components.StatusBarModel

	speed    *domain.SpeedResult
	summary  string
	hasAudio bool
	notice   string
	settled  int
	done     bool
	quitting bool
	width    int
	height   int
}

// New creates the model.
func New(deps Deps) Model {
	if len(deps.Agents) == 0 {
		deps.Agents = domain.AllAgents()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	panes := make([]components.AgentPaneModel, len(deps.Agents))
	for i, a := range deps.Agents {
		panes[i] = components.NewAgentPane(a)
	}
	panes[0].SetFocused(true)

	sb := components.NewStatusBar()
	sb.Subject = deps.Subject.Label()
	sb.Backend = deps.Backend
	sb.Hints = []components.KeyHint{
		{Key: "tab", Desc: "next pane"},
		{Key: "↑/↓", Desc: "scroll"},
		{Key: "s", Desc: "speak"},
		{Key: "q", Desc: "quit"},
	}

	return Model{deps: deps, panes: panes, spinner: s, statusBar: sb}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case FragmentMsg:
		if i := m.paneIndex(msg.Agent); i >= 0 {
			// The structured agent's raw JSON is replaced by its parsed answer.
			if !(msg.Agent.Structured() && m.speed != nil) {
				m.panes[i].SetText(msg.Text)
			}
		}
		return m, nil

	case SpeedMsg:
		res := msg.Result
		m.speed = &res
		for i := range m.panes {
			if m.panes[i].Agent.Structured() {
				m.panes[i].SetText(components.SpeedMarkdown(res))
			}
		}
		return m, nil

	case RunDoneMsg:
		for _, o := range msg.Outcomes {
			i := m.paneIndex(o.Agent)
			if i < 0 {
				continue
			}
			text := o.Text
			if o.OK() && o.Agent.Structured() && m.speed != nil {
				text = components.SpeedMarkdown(*m.speed)
			}
			m.panes[i].Finish(text, o.Err)
			m.settled++
		}
		m.done = true
		m.updateStatus()
		return m, nil

	case EnrichedMsg:
		m.summary = msg.Summary
		m.hasAudio = msg.HasAudio
		m.layout()
		return m, nil

	case SpeakDoneMsg:
		// A replay cancelled by a newer one leaves the notice to the newer one.
		if errors.Is(msg.Err, context.Canceled) {
			return m, nil
		}
		if msg.Err != nil {
			m.notice = uxerror.Humanize(msg.Err).Title
		} else {
			m.notice = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		if m.deps.Cancel != nil {
			m.deps.Cancel()
		}
		if m.deps.StopAudio != nil {
			m.deps.StopAudio()
		}
		return m, tea.Quit
	case "tab", "right", "l":
		m.setFocus((m.focus + 1) % len(m.panes))
		return m, nil
	case "shift+tab", "left", "h":
		m.setFocus((m.focus - 1 + len(m.panes)) % len(m.panes))
		return m, nil
	case "s":
		if m.deps.Speak == nil || !m.hasAudio {
			return m, nil
		}
		m.notice = theme.SymbolSpeaker + " playing"
		speak := m.deps.Speak
		return m, func() tea.Msg { return SpeakDoneMsg{Err: speak()} }
	case "x":
		if m.deps.StopAudio != nil {
			m.deps.StopAudio()
		}
		m.notice = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.panes[m.focus], cmd = m.panes[m.focus].Update(msg)
	return m, cmd
}

// View renders the grid of panes, the summary line and the status bar.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := theme.Header.Render(fmt.Sprintf("%s %s %s", m.deps.Subject.Label(), theme.SymbolArrowR, oneLine(m.deps.Input, max(m.width-20, 20))))

	cols := m.columns()
	var rows []string
	for i := 0; i < len(m.panes); i += cols {
		var row []string
		for j := i; j < min(i+cols, len(m.panes)); j++ {
			row = append(row, m.panes[j].View(m.spinner))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}

	parts := []string{header, lipgloss.JoinVertical(lipgloss.Left, rows...)}
	if line := m.summaryLine(); line != "" {
		parts = append(parts, line)
	}
	parts = append(parts, m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) summaryLine() string {
	switch {
	case m.notice != "":
		return theme.TextInfo.Render(m.notice)
	case m.summary != "":
		return theme.TextAccent.Width(max(m.width, 20)).Render(theme.SymbolSpeaker + " " + m.summary)
	}
	return ""
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	cols := m.columns()
	rowCount := (len(m.panes) + cols - 1) / cols
	reserved := 3 // header with padding, status bar
	if m.summary != "" || m.notice != "" {
		reserved += lipgloss.Height(m.summaryLine())
	}
	paneH := max((m.height-reserved)/rowCount, 5)
	paneW := m.width / cols
	for i := range m.panes {
		m.panes[i].SetSize(paneW, paneH)
	}
	m.statusBar.SetWidth(m.width)
}

func (m Model) columns() int {
	if m.width >= theme.MinGridWidth && len(m.panes) > 1 {
		return 2
	}
	return 1
}

func (m *Model) setFocus(i int) {
	m.panes[m.focus].SetFocused(false)
	m.focus = i
	m.panes[m.focus].SetFocused(true)
}

func (m *Model) updateStatus() {
	var failed int
	for _, p := range m.panes {
		if p.State == components.PaneFailed {
			failed++
		}
	}
	extra := fmt.Sprintf("%d/%d agents done", m.settled, len(m.panes))
	if failed > 0 {
		extra += fmt.Sprintf(", %d failed", failed)
	}
	m.statusBar.Extra = extra
}

func (m Model) paneIndex(agent domain.AgentKind) int {
	for i, p := range m.panes {
		if p.Agent == agent {
			return i
		}
	}
	return -1
}

// Done reports whether every agent has settled.
func (m Model) Done() bool { return m.done }

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > width {
		return string(r[:width-1]) + theme.SymbolEllipsis
	}
	return s
}
