// Package quiz generates GIFT questions for quiz modules.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/ai"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/gift"
	"github.com/kalambet/aiassist/internal/storage"
)

const (
	ModuleType        = "quiz"
	GenerateQuestions = "generate_questions"

	defaultDifficulty   = "medium"
	defaultNumQuestions = 5
	defaultCategory     = "Default"
	maxQuestions        = 50
	contextPreviewLen   = 100
)

var Difficulties = []string{"easy", "medium", "hard"}

// Params is the stored data of a generate_questions action.
type Params struct {
	QContext     string `json:"qcontext"`
	TextPrompt   string `json:"textprompt"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"numquestions"`
	Category     string `json:"category"`
}

func (p Params) withDefaults() Params {
	if p.TextPrompt == "" {
		p.TextPrompt = DefaultTextPrompt
	}
	if p.Difficulty == "" {
		p.Difficulty = defaultDifficulty
	}
	if p.NumQuestions <= 0 {
		p.NumQuestions = defaultNumQuestions
	}
	if p.Category == "" {
		p.Category = defaultCategory
	}
	return p
}

// QuestionStore persists generated questions.
type QuestionStore interface {
	CreateQuizQuestion(q *storage.QuizQuestion) error
}

type Extension struct {
	questions QuestionStore
	gen       ai.TextGenerator
	logger    *slog.Logger
}

func New(questions QuestionStore, gen ai.TextGenerator) *Extension {
	return &Extension{questions: questions, gen: gen, logger: slog.Default()}
}

func (e *Extension) ModuleType() string { return ModuleType }

func (e *Extension) Actions() []string { return []string{GenerateQuestions} }

func (e *Extension) FormFields(actionName string) []extension.Field {
	if actionName != GenerateQuestions {
		return nil
	}
	return []extension.Field{
		{Name: "qcontext", Label: "The context for the questions", Type: "textarea", Required: true,
			Help: "A description of the context of the question."},
		{Name: "numquestions", Label: "Number of questions to generate", Type: "number", Default: defaultNumQuestions},
		{Name: "difficulty", Label: "Question difficulty", Type: "select", Default: defaultDifficulty, Options: Difficulties},
		{Name: "textprompt", Label: "Text prompt for question generation", Type: "textarea", Default: DefaultTextPrompt},
		{Name: "category", Label: "Question category", Type: "text", Default: defaultCategory},
	}
}

func (e *Extension) Validate(_ string, form extension.Form) error {
	verr := &action.ValidationError{Fields: map[string]string{}}

	if form.String("qcontext") == "" {
		verr.Fields["qcontext"] = "You must provide a context for the questions."
	}
	if d := form.String("difficulty"); d != "" && !extension.OneOf(d, Difficulties) {
		verr.Fields["difficulty"] = "must be one of " + strings.Join(Difficulties, ", ")
	}
	n, err := form.Int("numquestions", defaultNumQuestions)
	if err != nil {
		verr.Fields["numquestions"] = err.Error()
	} else if n < 1 || n > maxQuestions {
		verr.Fields["numquestions"] = fmt.Sprintf("must be between 1 and %d", maxQuestions)
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func (e *Extension) Process(_ string, form extension.Form) (map[string]any, error) {
	n, err := form.Int("numquestions", defaultNumQuestions)
	if err != nil {
		return nil, err
	}
	p := Params{
		QContext:     form.String("qcontext"),
		TextPrompt:   form.String("textprompt"),
		Difficulty:   form.String("difficulty"),
		NumQuestions: n,
		Category:     form.String("category"),
	}.withDefaults()

	return map[string]any{
		"qcontext":     p.QContext,
		"textprompt":   p.TextPrompt,
		"difficulty":   p.Difficulty,
		"numquestions": p.NumQuestions,
		"category":     p.Category,
	}, nil
}

// Describe renders "Context: <start of context> (N questions, difficulty)".
func (e *Extension) Describe(a storage.Action) string {
	var p Params
	if err := json.Unmarshal([]byte(a.DataJSON), &p); err != nil {
		return ""
	}
	p = p.withDefaults()
	runes := []rune(p.QContext)
	preview := p.QContext
	if len(runes) > contextPreviewLen {
		preview = string(runes[:contextPreviewLen]) + "..."
	}
	return fmt.Sprintf("Context: %s (%d questions, %s)", preview, p.NumQuestions, p.Difficulty)
}

// Execute asks for one question per iteration. Replies that are not valid
// GIFT are skipped; a failing save aborts the run.
func (e *Extension) Execute(ctx context.Context, run *action.Run) error {
	var p Params
	if err := run.Params(&p); err != nil {
		return err
	}
	p = p.withDefaults()
	a := run.Action()
	prompt := p.TextPrompt + "\n\nCONTEXT\n" + p.QContext + "\n\nDIFFICULTY\n" + p.Difficulty

	total := p.NumQuestions
	for i := 0; i < total; i++ {
		if err := run.Checkpoint(ctx); err != nil {
			return err
		}
		if err := run.SetStatusText(ctx, fmt.Sprintf("Processing question: %d/%d", i+1, total)); err != nil {
			return err
		}

		q, raw, err := e.generate(ctx, prompt)
		if err != nil {
			e.logger.Warn("question generation failed", "action_id", a.ID, "index", i+1, "error", err)
			if err := run.SetStatusText(ctx, fmt.Sprintf("Error processing question %d", i+1)); err != nil {
				return err
			}
		} else if err := e.save(a, p, i+1, q, raw); err != nil {
			return err
		}

		if err := run.SetProgress(ctx, (i+1)*100/total); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) generate(ctx context.Context, prompt string) (gift.Question, string, error) {
	reply, err := e.gen.GenerateText(ctx, prompt)
	if err != nil {
		return gift.Question{}, "", err
	}
	raw := stripFence(reply)
	q, err := gift.Parse(raw)
	if err != nil {
		return gift.Question{}, "", fmt.Errorf("parsing GIFT reply: %w", err)
	}
	if q.Type == gift.Description {
		return gift.Question{}, "", errors.New("reply has no answer block")
	}
	return q, raw, nil
}

func (e *Extension) save(a storage.Action, p Params, n int, q gift.Question, raw string) error {
	answers, err := json.Marshal(q.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	name := q.Name
	if name == "" {
		name = fmt.Sprintf("Question %d", n)
	}
	err = e.questions.CreateQuizQuestion(&storage.QuizQuestion{
		ModuleID:     a.ContextID,
		UserID:       a.UserID,
		Category:     p.Category,
		Name:         name,
		QType:        string(q.Type),
		QuestionText: q.Text,
		AnswersJSON:  string(answers),
		GIFT:         raw,
	})
	if err != nil {
		return fmt.Errorf("saving question %d: %w", n, err)
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
