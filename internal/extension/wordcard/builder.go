// Package wordcard generates illustrated, spoken definition cards for
// word-list entries. Glossary and book modules share it.
package wordcard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/ai"
	"github.com/kalambet/aiassist/internal/filestore"
	"github.com/kalambet/aiassist/internal/wordlist"
)

// Card is everything generated for one word.
type Card struct {
	Word            string
	Definition      string
	Translation     string
	GenderOrArticle string
	Example         string
	Note            string
	PartOfSpeech    string
	ImageURL        string
	ImageWidth      int
	ImageHeight     int
	AudioURL        string
	ExampleAudioURL string
}

// reply is the JSON object the text prompt asks for.
type reply struct {
	Word            string `json:"word"`
	DefinitionEN    string `json:"definition_en"`
	TranslationFR   string `json:"translation_fr"`
	GenderOrArticle string `json:"gender_or_article"`
	ExampleEN       string `json:"example_en"`
}

// SaveFunc persists a finished card for the action's module.
type SaveFunc func(ctx context.Context, card Card) error

// Builder turns word-list entries into cards.
type Builder struct {
	gen    ai.Generator
	files  filestore.Store
	opts   wordlist.Options
	logger *slog.Logger
}

func NewBuilder(gen ai.Generator, files filestore.Store, opts wordlist.Options) *Builder {
	return &Builder{gen: gen, files: files, opts: opts, logger: slog.Default()}
}

// Generate runs the word pipeline for the action behind run. Words whose
// text generation fails are skipped with a status message; a failing save
// aborts the run.
func (b *Builder) Generate(ctx context.Context, run *action.Run, kind string, save SaveFunc) error {
	var p Params
	if err := run.Params(&p); err != nil {
		return err
	}
	p = p.withDefaults()
	a := run.Action()

	total := len(p.Wordlist)
	for i, line := range p.Wordlist {
		if err := run.Checkpoint(ctx); err != nil {
			return err
		}

		entry, lerr := wordlist.ParseLine(line, i+1, b.opts)
		if lerr != nil {
			b.logger.Warn("skipping invalid word-list line", "action_id", a.ID, "error", lerr)
			if err := run.SetStatusText(ctx, "Error processing word "+line); err != nil {
				return err
			}
		} else {
			if err := run.SetStatusText(ctx, "Processing word: "+entry.Word); err != nil {
				return err
			}
			prefix := filestore.Key(strconv.FormatInt(a.ContextID, 10), kind, uuid.NewString())
			card, err := b.Build(ctx, entry, p, prefix)
			if err != nil {
				b.logger.Warn("word generation failed", "action_id", a.ID, "word", entry.Word, "error", err)
				if err := run.SetStatusText(ctx, "Error processing word "+entry.Word); err != nil {
					return err
				}
			} else if err := save(ctx, card); err != nil {
				return fmt.Errorf("saving %q: %w", entry.Word, err)
			}
		}

		if err := run.SetProgress(ctx, (i+1)*100/total); err != nil {
			return err
		}
	}
	return nil
}

// Build generates the card for one entry. Only a text generation failure is
// returned; missing images or audio leave the matching URL empty.
func (b *Builder) Build(ctx context.Context, entry wordlist.Entry, p Params, keyPrefix string) (Card, error) {
	p = p.withDefaults()

	text, err := b.gen.GenerateText(ctx, p.TextPrompt+"\n\nWORD\n"+entry.Word)
	if err != nil {
		return Card{}, err
	}
	card := parseReply(entry.Word, text)

	if entry.Translation != nil {
		card.Translation = *entry.Translation
	}
	if def := entry.Meta["def"]; def != "" {
		card.Definition = def
	}
	if ex := entry.Meta["ex"]; ex != "" {
		card.Example = ex
	}
	card.Note = entry.Meta["note"]
	card.PartOfSpeech = entry.Meta["pos"]
	card.ImageWidth, card.ImageHeight = parseSize(p.ImageSize)

	img, err := b.gen.GenerateImage(ctx, p.ImagePrompt+"\n\nWORD\n"+entry.Word, ai.ImageOptions{
		Size:    p.ImageSize,
		Style:   "natural",
		Quality: "standard",
	})
	if err != nil {
		b.logger.Warn("image generation failed", "word", entry.Word, "error", err)
	} else {
		card.ImageURL = b.store(ctx, keyPrefix, img)
	}

	speech := ai.SpeechOptions{Voice: p.Voice, Format: p.Format}
	if audio, err := b.gen.TextToSpeech(ctx, entry.Word, speech); err != nil {
		b.logger.Warn("speech generation failed", "word", entry.Word, "error", err)
	} else {
		audio.Name = "word." + p.Format
		card.AudioURL = b.store(ctx, keyPrefix, audio)
	}

	if card.Example != "" {
		if audio, err := b.gen.TextToSpeech(ctx, card.Example, speech); err != nil {
			b.logger.Warn("example speech generation failed", "word", entry.Word, "error", err)
		} else {
			audio.Name = "example." + p.Format
			card.ExampleAudioURL = b.store(ctx, keyPrefix, audio)
		}
	}

	return card, nil
}

func (b *Builder) store(ctx context.Context, prefix string, f ai.File) string {
	url, err := b.files.Put(ctx, filestore.Key(prefix, f.Name), f.ContentType, f.Data)
	if err != nil {
		b.logger.Warn("storing generated file failed", "file", f.Name, "error", err)
		return ""
	}
	return url
}

// parseReply decodes the JSON card. Models sometimes wrap it in a markdown
// fence; anything that still is not JSON is used as the definition.
func parseReply(word, text string) Card {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Card{Word: word, Definition: strings.TrimSpace(text)}
	}
	return Card{
		Word:            word,
		Definition:      r.DefinitionEN,
		Translation:     r.TranslationFR,
		GenderOrArticle: r.GenderOrArticle,
		Example:         r.ExampleEN,
	}
}

func parseSize(size string) (int, int) {
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return 0, 0
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return width, height
}
