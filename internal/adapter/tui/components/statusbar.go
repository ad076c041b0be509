package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tutor-ai/internal/adapter/tui/theme"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "tab"
	Desc string // e.g. "next pane"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and run info on the right.
type StatusBarModel struct {
	Hints   []KeyHint
	Subject string
	Backend string
	Extra   string // e.g. "3/4 agents done"
	width   int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var parts []string
	if m.Subject != "" {
		parts = append(parts, m.Subject)
	}
	if m.Backend != "" {
		parts = append(parts, m.Backend)
	}
	right := theme.TextMuted.Render(strings.Join(parts, " "+theme.SymbolBullet+" "))
	if m.Extra != "" {
		if len(parts) > 0 {
			right += "  "
		}
		right += theme.TextInfo.Render(m.Extra)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)

	bar := left + strings.Repeat(" ", gap) + right
	return theme.StatusBar.Width(m.width).Render(bar)
}
