// Package printer renders a run to a plain writer for non-interactive use.
// One agent can be streamed live; every settled answer is printed as a
// markdown section at the end.
package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"tutor-ai/internal/adapter/tui/components"
	"tutor-ai/internal/adapter/tui/theme"
	"tutor-ai/internal/adapter/tui/uxerror"
	"tutor-ai/internal/domain"
)

// Options configures a Printer.
type Options struct {
	// Only restricts the final sections to one agent. Empty prints all.
	Only domain.AgentKind
	// Live is streamed as it arrives. Structured agents cannot be live.
	Live domain.AgentKind
	// Width is the markdown wrap width. Default theme.MaxContentWidth.
	Width int
}

// Printer writes run progress to w. Its methods are safe for concurrent use.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	opts    Options
	printed string // live text already written
	md      *glamour.TermRenderer
}

// New creates a printer.
func New(w io.Writer, opts Options) *Printer {
	if opts.Width <= 0 {
		opts.Width = theme.MaxContentWidth
	}
	if opts.Live.Structured() {
		opts.Live = ""
	}
	return &Printer{w: w, opts: opts}
}

// Header prints the problem being solved.
func (p *Printer) Header(subject domain.Subject, input string, hasImage bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%s %s %s", subject.Label(), theme.SymbolArrowR, strings.TrimSpace(input))
	if hasImage {
		line += " " + theme.TextMuted.Render("[image]")
	}
	fmt.Fprintln(p.w, theme.Header.Render(line))
}

// Update receives the cumulative text of agent. Only the live agent is
// written, and only the part not written yet.
func (p *Printer) Update(agent domain.AgentKind, full string) {
	if agent != p.opts.Live || agent == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rest, ok := strings.CutPrefix(full, p.printed); ok {
		io.WriteString(p.w, rest)
	} else {
		// The stream restarted with different text.
		io.WriteString(p.w, "\n"+full)
	}
	p.printed = full
}

// AgentSettled prints a one-line status for agent.
func (p *Printer) AgentSettled(agent domain.AgentKind, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if agent == p.opts.Live && p.printed != "" {
		fmt.Fprintln(p.w)
	}
	if err != nil {
		fmt.Fprintf(p.w, "%s %s %s\n", theme.TextError.Render(theme.SymbolError), theme.AgentLabel(agent), theme.TextMuted.Render(uxerror.Humanize(err).Title))
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", theme.TextSuccess.Render(theme.SymbolSuccess), theme.AgentLabel(agent))
}

// Outcomes prints the final sections. The live agent is skipped since it
// was already written. speed, when set, replaces the structured agent's
// raw text.
func (p *Printer) Outcomes(outcomes []domain.Outcome, speed *domain.SpeedResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range outcomes {
		if p.opts.Only != "" && o.Agent != p.opts.Only {
			continue
		}
		if o.Agent == p.opts.Live {
			continue
		}
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, theme.AgentLabel(o.Agent))
		if !o.OK() {
			fmt.Fprintln(p.w, theme.TextError.Render(uxerror.Humanize(o.Err).Render()))
			continue
		}
		if o.Agent.Structured() && speed != nil {
			fmt.Fprintln(p.w, theme.Answer.Render(p.renderLocked(components.SpeedMarkdown(*speed))))
			continue
		}
		fmt.Fprint(p.w, p.renderLocked(o.Text))
	}
}

// Summary prints the spoken summary.
func (p *Printer) Summary(summary string) {
	if summary == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n%s %s\n", theme.TextAccent.Render(theme.SymbolSpeaker), summary)
}

// Quiz prints a practice question with its options. The correct answer is
// printed last.
func (p *Printer) Quiz(q *domain.Quiz) {
	if q == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n%s\n", theme.Bold.Render(q.Question))
	for i, opt := range q.Options {
		fmt.Fprintf(p.w, "  %c. %s\n", 'A'+i, opt)
	}
	fmt.Fprintf(p.w, "%s %s\n", theme.TextMuted.Render("Answer:"), q.Correct)
}

// Error prints a failure that ended the command.
func (p *Printer) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, theme.TextError.Render(theme.SymbolError+" "+uxerror.Humanize(err).Render()))
}

func (p *Printer) renderLocked(md string) string {
	if p.md == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(p.opts.Width),
		)
		if err != nil {
			return md + "\n"
		}
		p.md = r
	}
	out, err := p.md.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}
