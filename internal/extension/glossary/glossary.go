// Package glossary generates glossary entries from a word list.
package glossary

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
	ModuleType          = "glossary"
	GenerateDefinitions = "generate_definitions"
)

//go:embed entry.html.tmpl
var entryTemplate string

var entryTmpl = template.Must(template.New("entry").Parse(entryTemplate))

// EntryStore persists glossary entries.
type EntryStore interface {
	CreateGlossaryEntry(e *storage.GlossaryEntry) error
}

// Extension implements extension.Extension for glossaries.
type Extension struct {
	entries EntryStore
	cards   *wordcard.Builder
	opts    wordlist.Options
}

func New(entries EntryStore, cards *wordcard.Builder, opts wordlist.Options) *Extension {
	return &Extension{entries: entries, cards: cards, opts: opts}
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

// Execute creates one entry per word whose definition could be generated.
func (e *Extension) Execute(ctx context.Context, run *action.Run) error {
	a := run.Action()
	return e.cards.Generate(ctx, run, ModuleType, func(_ context.Context, card wordcard.Card) error {
		html, err := Render(card)
		if err != nil {
			return err
		}
		return e.entries.CreateGlossaryEntry(&storage.GlossaryEntry{
			ModuleID:   a.ContextID,
			UserID:     a.UserID,
			Concept:    card.Word,
			Definition: html,
		})
	})
}

// Render produces the HTML definition of an entry.
func Render(card wordcard.Card) (string, error) {
	var buf bytes.Buffer
	if err := entryTmpl.Execute(&buf, card); err != nil {
		return "", fmt.Errorf("rendering glossary entry %q: %w", card.Word, err)
	}
	return buf.String(), nil
}
