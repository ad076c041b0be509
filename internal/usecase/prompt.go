package usecase

import (
	"fmt"

	"tutor-ai/internal/domain"
)

// defaultTemplates holds the instruction text sent to each agent.
var defaultTemplates = map[domain.AgentKind]string{
	domain.AgentSpeed:      `Bạn là chuyên gia giải đề thi THPT Quốc gia. Trả về JSON: {"finalAnswer": "...", "casioSteps": "..."}. Ngắn gọn, dùng LaTeX.`,
	domain.AgentSocratic:   `Bạn là giáo sư Socratic. Giải chi tiết, khoa học, cực ngắn gọn, dùng LaTeX. Đi thẳng vào trọng tâm.`,
	domain.AgentNotebook:   `Bạn là NotebookLM. Tóm tắt 5 gạch đầu dòng kiến thức then chốt. Không văn hoa, dùng LaTeX.`,
	domain.AgentPerplexity: `Bạn là Perplexity AI. Liệt kê 2 dạng bài tập nâng cao liên quan. Chỉ nêu đề bài, dùng LaTeX.`,
}

const summaryInstruction = `Tóm tắt lời giải sau trong tối đa 3 câu để đọc thành tiếng. Không dùng LaTeX, không dùng ký hiệu markdown.`

const quizInstruction = `Dựa trên nội dung bài giải sau, hãy tạo 1 câu hỏi trắc nghiệm tương tự (kèm 4 đáp án A, B, C, D).
Trả về định dạng JSON: {"question": "...", "options": ["A...", "B...", "C...", "D..."], "correct": "A"}.`

// PromptBuilder renders agent prompts from the template table.
type PromptBuilder struct {
	templates map[domain.AgentKind]string
}

// NewPromptBuilder returns a builder using the default templates, with any
// non-empty entries in overrides taking precedence.
func NewPromptBuilder(overrides map[domain.AgentKind]string) *PromptBuilder {
	t := make(map[domain.AgentKind]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		t[k] = v
	}
	for k, v := range overrides {
		if v != "" && k.Valid() {
			t[k] = v
		}
	}
	return &PromptBuilder{templates: t}
}

// Template returns the instruction text for an agent.
func (b *PromptBuilder) Template(agent domain.AgentKind) (string, error) {
	t, ok := b.templates[agent]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownAgent, agent)
	}
	return t, nil
}

// Parts builds the content parts for req. The image, if any, comes first.
func (b *PromptBuilder) Parts(req domain.AgentRequest) ([]domain.Part, error) {
	tmpl, err := b.Template(req.Agent)
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("Môn: %s. Yêu cầu: %s. Nội dung: %s", req.Subject.Label(), tmpl, req.Input)

	parts := make([]domain.Part, 0, 2)
	if req.HasImage() {
		img := *req.Image
		if img.MIMEType == "" {
			img.MIMEType = domain.DefaultImageMIME
		}
		parts = append(parts, domain.Part{Inline: &img})
	}
	parts = append(parts, domain.Part{Text: text})
	return parts, nil
}

// SummaryParts builds the prompt used to condense a solution for speech.
func (b *PromptBuilder) SummaryParts(solution string) []domain.Part {
	return []domain.Part{{Text: summaryInstruction + "\nNội dung: " + solution}}
}

// QuizParts builds the prompt used to generate a similar practice question.
func (b *PromptBuilder) QuizParts(solution string) []domain.Part {
	return []domain.Part{{Text: quizInstruction + "\nNội dung: " + solution}}
}
