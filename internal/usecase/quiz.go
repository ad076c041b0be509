package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tutor-ai/internal/domain"
)

const quizSchema = `{
	"type": "object",
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"options": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
		"correct": {"type": "string", "minLength": 1}
	},
	"required": ["question", "options", "correct"]
}`

var compileQuizSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("quiz.json", strings.NewReader(quizSchema)); err != nil {
		return nil, err
	}
	return c.Compile("quiz.json")
})

// QuizGenerator produces a multiple-choice question similar to a solved
// problem. Generation is best effort.
type QuizGenerator struct {
	backend     domain.GenerationBackend
	prompts     *PromptBuilder
	temperature float32
	logger      *slog.Logger
}

// NewQuizGenerator creates a quiz generator.
func NewQuizGenerator(backend domain.GenerationBackend, prompts *PromptBuilder, logger *slog.Logger) *QuizGenerator {
	if prompts == nil {
		prompts = NewPromptBuilder(nil)
	}
	return &QuizGenerator{backend: backend, prompts: prompts, temperature: DefaultTemperature, logger: logger}
}

// Generate returns a quiz for solution, or nil when the backend fails or
// answers with something that is not a valid quiz.
func (g *QuizGenerator) Generate(ctx context.Context, solution string) *domain.Quiz {
	if strings.TrimSpace(solution) == "" {
		return nil
	}
	text, err := g.backend.Generate(ctx, domain.GenerationRequest{
		Parts:          g.prompts.QuizParts(solution),
		ResponseFormat: domain.FormatJSON,
		Temperature:    g.temperature,
	})
	if err != nil {
		g.logger.Warn("quiz generation failed", "error", domain.TranslateError(err))
		return nil
	}

	clean := stripCodeFences(text)
	var raw any
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		g.logger.Warn("quiz response is not JSON", "error", err)
		return nil
	}
	if schema, err := compileQuizSchema(); err == nil {
		if err := schema.Validate(raw); err != nil {
			g.logger.Warn("quiz response rejected", "error", err)
			return nil
		}
	}

	var q domain.Quiz
	if err := json.Unmarshal([]byte(clean), &q); err != nil {
		return nil
	}
	return &q
}

// GenerateForRun builds a quiz from a run's primary answer and attaches it.
func (g *QuizGenerator) GenerateForRun(ctx context.Context, run *Run) *domain.Quiz {
	text, ok := run.PrimaryText()
	if !ok {
		return nil
	}
	q := g.Generate(ctx, text)
	if q != nil {
		run.attachQuiz(q)
	}
	return q
}
