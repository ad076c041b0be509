package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"tutor-ai/internal/adapter/tui/theme"
	"tutor-ai/internal/adapter/tui/uxerror"
	"tutor-ai/internal/domain"
)

// PaneState is the lifecycle of one agent pane.
type PaneState int

const (
	PaneWaiting PaneState = iota
	PaneStreaming
	PaneDone
	PaneFailed
)

// AgentPaneModel shows one agent's answer: raw text while streaming, then
// rendered markdown once the agent settles. Auto-scroll follows the stream
// until the user scrolls up.
type AgentPaneModel struct {
	Agent    domain.AgentKind
	State    PaneState
	Viewport viewport.Model

	text     string
	err      error
	rendered string // cached glamour output for text
	renderW  int

	mdRenderer *glamour.TermRenderer
	ready      bool
	atBottom   bool
	focused    bool
	width      int
	height     int
}

// NewAgentPane creates a pane. The viewport is created on the first SetSize.
func NewAgentPane(agent domain.AgentKind) AgentPaneModel {
	return AgentPaneModel{Agent: agent, atBottom: true}
}

// SetSize sets the outer pane size, border included.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width, m.height = w, h
	innerW, innerH := max(w-2, 1), max(h-3, 1) // border plus title line
	if !m.ready {
		m.Viewport = viewport.New(innerW, innerH)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = innerW
		m.Viewport.Height = innerH
	}
	m.refresh()
}

// SetFocused toggles the focus border.
func (m *AgentPaneModel) SetFocused(f bool) { m.focused = f }

// SetText replaces the streamed text.
func (m *AgentPaneModel) SetText(text string) {
	if m.State == PaneWaiting {
		m.State = PaneStreaming
	}
	m.text = text
	m.rendered = ""
	m.refresh()
}

// Finish marks the pane settled with its final text or error.
func (m *AgentPaneModel) Finish(text string, err error) {
	if err != nil {
		m.State = PaneFailed
		m.err = err
	} else {
		m.State = PaneDone
		m.text = text
	}
	m.rendered = ""
	m.refresh()
}

// Text returns the current text.
func (m AgentPaneModel) Text() string { return m.text }

// Update handles viewport scrolling and tracks auto-scroll state.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the bordered pane. spin is the shared spinner frame.
func (m AgentPaneModel) View(spin spinner.Model) string {
	var status string
	switch m.State {
	case PaneWaiting:
		status = theme.TextMuted.Render(theme.SymbolEllipsis)
	case PaneStreaming:
		status = spin.View()
	case PaneDone:
		status = theme.TextSuccess.Render(theme.SymbolSuccess)
	case PaneFailed:
		status = theme.TextError.Render(theme.SymbolError)
	}
	title := theme.AgentLabel(m.Agent) + " " + status

	body := "  Initializing" + theme.SymbolEllipsis
	if m.ready {
		body = m.Viewport.View()
	}

	border := theme.UnfocusedBorder
	if m.focused {
		border = theme.FocusBorder
	}
	return border.Width(max(m.width-2, 1)).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}

func (m *AgentPaneModel) refresh() {
	if !m.ready {
		return
	}
	m.Viewport.SetContent(m.content())
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

func (m *AgentPaneModel) content() string {
	w := m.Viewport.Width
	switch m.State {
	case PaneFailed:
		return theme.TextError.Width(w).Render(uxerror.Humanize(m.err).Render())
	case PaneDone:
		if m.rendered == "" || m.renderW != w {
			m.rendered = m.renderMarkdown(m.text, w)
			m.renderW = w
		}
		return m.rendered
	default:
		return lipgloss.NewStyle().Width(w).Render(m.text)
	}
}

func (m *AgentPaneModel) renderMarkdown(content string, width int) string {
	if m.mdRenderer == nil || m.renderW != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// SpeedMarkdown formats a structured answer for display.
func SpeedMarkdown(res domain.SpeedResult) string {
	out := "**Đáp án:** " + res.FinalAnswer
	if res.CasioSteps != "" {
		out += "\n\n**Casio:** " + res.CasioSteps
	}
	return out
}
