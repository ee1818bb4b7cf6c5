// Package book adds one chapter per word of a word list to a book.
package book

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/extension/wordcard"
	"github.com/kalambet/aiassist/internal/storage"
	"github.com/kalambet/aiassist/internal/wordlist"
)

const (
	ModuleType          = "book"
	GenerateDefinitions = "generate_definitions"
)

//go:embed chapter.html.tmpl
var chapterTemplate string

var chapterTmpl = template.Must(template.New("chapter").Parse(chapterTemplate))

// ChapterStore persists book chapters.
type ChapterStore interface {
	NextChapterPage(moduleID int64) (int, error)
	CreateBookChapter(c *storage.BookChapter) error
}

type Extension struct {
	chapters ChapterStore
	cards    *wordcard.Builder
	opts     wordlist.Options
}

func New(chapters ChapterStore, cards *wordcard.Builder, opts wordlist.Options) *Extension {
	return &Extension{chapters: chapters, cards: cards, opts: opts}
}

func (e *Extension) ModuleType() string { return ModuleType }

func (e *Extension) Actions() []string { return []string{GenerateDefinitions} }

func (e *Extension) FormFields(actionName string) []extension.Field {
	if actionName != GenerateDefinitions {
		return nil
	}
	return wordcard.FormFields()
}

func (e *Extension) Validate(_ string, form extension.Form) error {
	return wordcard.Validate(form, e.opts)
}

func (e *Extension) Process(_ string, form extension.Form) (map[string]any, error) {
	return wordcard.Process(form), nil
}

func (e *Extension) Describe(a storage.Action) string {
	return wordcard.Describe(a)
}

// Execute appends a chapter titled with each word after the book's last page.
func (e *Extension) Execute(ctx context.Context, run *action.Run) error {
	a := run.Action()
	return e.cards.Generate(ctx, run, ModuleType, func(_ context.Context, card wordcard.Card) error {
		var buf bytes.Buffer
		if err := chapterTmpl.Execute(&buf, card); err != nil {
			return fmt.Errorf("rendering chapter %q: %w", card.Word, err)
		}
		page, err := e.chapters.NextChapterPage(a.ContextID)
		if err != nil {
			return err
		}
		return e.chapters.CreateBookChapter(&storage.BookChapter{
			ModuleID: a.ContextID,
			PageNum:  page,
			Title:    card.Word,
			Content:  buf.String(),
		})
	})
}
