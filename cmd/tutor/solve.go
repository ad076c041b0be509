package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"tutor-ai/internal/adapter/tui/printer"
	"tutor-ai/internal/adapter/tui/solve"
	"tutor-ai/internal/domain"
	"tutor-ai/internal/usecase"
)

// maxImageSize bounds images read from disk.
const maxImageSize = 10 << 20

// solveOptions holds the parsed solve flags.
type solveOptions struct {
	Subject   domain.Subject
	Input     string
	ImagePath string
	Agent     domain.AgentKind
	TUI       bool
	Speak     bool
	Quiz      bool
	NoEnrich  bool
	FromStdin bool
}

// parseSolveArgs parses solve flags. Remaining arguments form the problem
// text; a lone "-" reads it from stdin instead.
func parseSolveArgs(args []string) (solveOptions, error) {
	opts := solveOptions{Subject: domain.SubjectMath}
	var words []string

	value := func(i *int, name string) (string, error) {
		arg := args[*i]
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s needs a value", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		flag, _, _ := strings.Cut(arg, "=")
		switch flag {
		case "--config":
			if _, err := value(&i, "--config"); err != nil {
				return opts, err
			}
		case "-s", "--subject":
			v, err := value(&i, flag)
			if err != nil {
				return opts, err
			}
			if opts.Subject, err = domain.ParseSubject(v); err != nil {
				return opts, err
			}
		case "--image":
			v, err := value(&i, flag)
			if err != nil {
				return opts, err
			}
			opts.ImagePath = v
		case "--agent":
			v, err := value(&i, flag)
			if err != nil {
				return opts, err
			}
			if opts.Agent, err = domain.ParseAgentKind(v); err != nil {
				return opts, err
			}
		case "--tui":
			opts.TUI = true
		case "--speak":
			opts.Speak = true
		case "--quiz":
			opts.Quiz = true
		case "--no-enrich":
			opts.NoEnrich = true
		case "-":
			opts.FromStdin = true
		default:
			if strings.HasPrefix(arg, "-") {
				return opts, fmt.Errorf("unknown flag %s", arg)
			}
			words = append(words, arg)
		}
	}

	opts.Input = strings.Join(words, " ")
	if opts.Speak && opts.NoEnrich {
		return opts, errors.New("--speak needs the spoken summary; drop --no-enrich")
	}
	if opts.Input == "" && opts.ImagePath == "" && !opts.FromStdin {
		return opts, fmt.Errorf("%w: give a problem, an --image or - for stdin", domain.ErrInvalidInput)
	}
	return opts, nil
}

// loadImage reads an image file or decodes a data: URL. The MIME type of a
// file is sniffed from its content.
func loadImage(ref string) (*domain.Image, error) {
	if strings.HasPrefix(ref, "data:") {
		return domain.ParseDataURL(ref)
	}
	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("%w: image larger than %d MB", domain.ErrInvalidInput, maxImageSize>>20)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: %s is %s, not an image", domain.ErrInvalidInput, ref, mime)
	}
	return &domain.Image{MIMEType: mime, Data: data}, nil
}

func runSolve(args []string) error {
	opts, err := parseSolveArgs(args)
	if err != nil {
		return err
	}
	if opts.FromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		opts.Input = strings.TrimSpace(strings.Join([]string{opts.Input, string(data)}, "\n"))
	}
	var image *domain.Image
	if opts.ImagePath != "" {
		if image, err = loadImage(opts.ImagePath); err != nil {
			return err
		}
	}

	cfg, log, logCloser, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, cleanup, err := initEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.TUI {
		return solveInteractive(ctx, eng, opts, image)
	}
	return solvePlain(ctx, eng, opts, image, os.Stdout)
}

// solvePlain streams one agent to w and prints every answer once the run
// settles.
func solvePlain(ctx context.Context, eng *Engine, opts solveOptions, image *domain.Image, w io.Writer) error {
	live := opts.Agent
	if live == "" {
		live = domain.AgentSocratic
	}
	pr := printer.New(w, printer.Options{Only: opts.Agent, Live: live})
	pr.Header(opts.Subject, opts.Input, image != nil)

	run := eng.Orchestrator.RunAll(ctx, opts.Subject, opts.Input, image, pr.Update)
	for _, o := range run.Outcomes() {
		pr.AgentSettled(o.Agent, o.Err)
	}
	pr.Outcomes(run.Outcomes(), run.Speed())
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !opts.NoEnrich {
		eng.Enricher.Enrich(ctx, run)
		pr.Summary(run.Summary())
		if clip := run.Audio(); opts.Speak && clip != nil {
			if err := eng.Player.PlayAndWait(ctx, clip); err != nil && !errors.Is(err, context.Canceled) {
				pr.Error(err)
			}
		}
	}
	if opts.Quiz {
		pr.Quiz(eng.Quiz.GenerateForRun(ctx, run))
	}

	if _, ok := run.PrimaryText(); !ok && allFailed(run.Outcomes()) {
		return domain.NewDomainError("solve", domain.ErrEmptyResponse, "every agent failed")
	}
	return nil
}

// solveInteractive runs the Bubble Tea view while the engine streams into
// it from a background goroutine.
func solveInteractive(ctx context.Context, eng *Engine, opts solveOptions, image *domain.Image) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var current atomic.Pointer[usecase.Run]
	voice := &speaker{player: eng.Player}
	model := solve.New(solve.Deps{
		Subject: opts.Subject,
		Input:   opts.Input,
		Agents:  eng.Agents,
		Backend: eng.Backend.Name(),
		Cancel:  cancel,
		Speak: func() error {
			run := current.Load()
			if run == nil || run.Audio() == nil {
				return nil
			}
			return voice.speak(ctx, run.Audio())
		},
		StopAudio: voice.stop,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		run := eng.Orchestrator.RunAll(ctx, opts.Subject, opts.Input, image, func(agent domain.AgentKind, text string) {
			p.Send(solve.FragmentMsg{Agent: agent, Text: text})
			if res := usecase.TryParseSpeed(agent, text); res != nil {
				p.Send(solve.SpeedMsg{Result: *res})
			}
		})
		current.Store(run)
		p.Send(solve.RunDoneMsg{Outcomes: run.Outcomes()})

		if opts.NoEnrich || ctx.Err() != nil {
			return
		}
		eng.Enricher.Enrich(ctx, run)
		clip := run.Audio()
		p.Send(solve.EnrichedMsg{Summary: run.Summary(), HasAudio: clip != nil})
		if opts.Speak && clip != nil {
			if _, err := eng.Player.Play(ctx, clip); err != nil {
				p.Send(solve.SpeakDoneMsg{Err: err})
			}
		}
	}()

	_, err := p.Run()
	cancel()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("solve view: %w", err)
	}
	return nil
}

// speaker replays clips from the interactive view. Each replay waits on its
// own context, cancelled by the next replay or a stop.
type speaker struct {
	player interface {
		PlayAndWait(ctx context.Context, clip *domain.AudioClip) error
		Stop()
	}

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *speaker) speak(ctx context.Context, clip *domain.AudioClip) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	return s.player.PlayAndWait(ctx, clip)
}

func (s *speaker) stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.player.Stop()
}

func allFailed(outcomes []domain.Outcome) bool {
	for _, o := range outcomes {
		if o.OK() {
			return false
		}
	}
	return len(outcomes) > 0
}
