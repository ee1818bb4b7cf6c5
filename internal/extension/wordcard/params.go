package wordcard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/storage"
	"github.com/kalambet/aiassist/internal/wordlist"
)

// DefaultTextPrompt asks for a learner-friendly JSON definition card.
const DefaultTextPrompt = `Given a single English word, produce:
1) A concise, learner-friendly definition in English.
2) A French translation.
3) One simple example sentence in English.

OUTPUT FORMAT
Return ONLY a single JSON object with these keys:
- "word": the input word (string)
- "definition_en": the definition in English (string, 12-30 words, no jargon)
- "translation_fr": the French translation of the word (string; if noun, include correct gender/article)
- "gender_or_article": the English gender/article tag for nouns (string; "m", "f", "m/f", "n/a" for non-nouns, adv. for adverbs)
- "example_en": a short, natural English example sentence using the word (string)

RULES
- Output valid JSON only. No markdown, no comments, no extra text.
- Escape all quotes properly for JSON.
- Keep it concise and clear for learners (A2-B1 level).
- If the word is not a noun, set "gender_or_article" to "n/a".
- Do not invent multiple senses; pick the most common educational sense.
- Avoid idioms, slang, and rare usages.`

// DefaultImagePrompt asks for a text-free illustration.
const DefaultImagePrompt = "Create a simple, clear and engaging image that illustrates the meaning of the word. " +
	"The image should be suitable for an educational context. Important : the image should NOT contain any text."

var (
	ImageSizes = []string{"128x128", "256x256", "512x512", "1024x1024"}
	Voices     = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}
	Formats    = []string{"mp3", "opus", "aac", "flac", "wav"}
)

const (
	defaultImageSize = "256x256"
	defaultVoice     = "alloy"
	defaultFormat    = "mp3"
)

// Params is the stored data of a generate_definitions action.
type Params struct {
	Wordlist    []string `json:"wordlist"`
	TextPrompt  string   `json:"textprompt"`
	ImagePrompt string   `json:"imageprompt"`
	ImageSize   string   `json:"imagesize"`
	Voice       string   `json:"voice"`
	Format      string   `json:"format"`
}

func (p Params) withDefaults() Params {
	if p.TextPrompt == "" {
		p.TextPrompt = DefaultTextPrompt
	}
	if p.ImagePrompt == "" {
		p.ImagePrompt = DefaultImagePrompt
	}
	if p.ImageSize == "" {
		p.ImageSize = defaultImageSize
	}
	if p.Voice == "" {
		p.Voice = defaultVoice
	}
	if p.Format == "" {
		p.Format = defaultFormat
	}
	return p
}

// FormFields describes the generate_definitions form.
func FormFields() []extension.Field {
	return []extension.Field{
		{Name: "wordlist", Label: "Word list", Type: "textarea", Required: true,
			Help: "One word per line: word[=translation][(def:...,ex:...,pos:...,note:...)]"},
		{Name: "textprompt", Label: "Text prompt for definition generation", Type: "textarea", Default: DefaultTextPrompt},
		{Name: "imageprompt", Label: "Image prompt for image generation", Type: "textarea", Default: DefaultImagePrompt},
		{Name: "imagesize", Label: "Image size", Type: "select", Default: defaultImageSize, Options: ImageSizes},
		{Name: "voice", Label: "Voice for sound generation", Type: "select", Default: defaultVoice, Options: Voices},
		{Name: "format", Label: "Audio format", Type: "select", Default: defaultFormat, Options: Formats},
	}
}

// Validate checks a generate_definitions form.
func Validate(form extension.Form, opts wordlist.Options) error {
	verr := &action.ValidationError{Fields: map[string]string{}}

	text := form.String("wordlist")
	if text == "" {
		verr.Fields["wordlist"] = "a word list is required"
	} else {
		res := wordlist.Parse(text, opts)
		if !res.OK {
			verr.Fields["wordlist"] = fmt.Sprintf("%d line(s) are invalid", len(res.Errors))
			verr.Problems = res.Messages()
		} else if len(res.Entries) == 0 {
			verr.Fields["wordlist"] = "the word list has no words"
		}
	}

	if v := form.String("imagesize"); v != "" && !extension.OneOf(v, ImageSizes) {
		verr.Fields["imagesize"] = "must be one of " + strings.Join(ImageSizes, ", ")
	}
	if v := form.String("voice"); v != "" && !extension.OneOf(v, Voices) {
		verr.Fields["voice"] = "must be one of " + strings.Join(Voices, ", ")
	}
	if v := form.String("format"); v != "" && !extension.OneOf(v, Formats) {
		verr.Fields["format"] = "must be one of " + strings.Join(Formats, ", ")
	}

	if len(verr.Fields) == 0 && len(verr.Problems) == 0 {
		return nil
	}
	return verr
}

// Process keeps the content lines of the word list and fills in defaults.
// Lines are re-parsed one by one at execution time.
func Process(form extension.Form) map[string]any {
	var lines []string
	for _, l := range wordlist.Lines(form.String("wordlist")) {
		lines = append(lines, l.Text)
	}
	p := Params{
		Wordlist:    lines,
		TextPrompt:  form.String("textprompt"),
		ImagePrompt: form.String("imageprompt"),
		ImageSize:   form.String("imagesize"),
		Voice:       form.String("voice"),
		Format:      form.String("format"),
	}.withDefaults()

	return map[string]any{
		"wordlist":    p.Wordlist,
		"textprompt":  p.TextPrompt,
		"imageprompt": p.ImagePrompt,
		"imagesize":   p.ImageSize,
		"voice":       p.Voice,
		"format":      p.Format,
	}
}

// Describe renders "List of words: a, b, c" from stored action data.
func Describe(a storage.Action) string {
	var p Params
	if err := json.Unmarshal([]byte(a.DataJSON), &p); err != nil {
		return ""
	}
	words := make([]string, 0, len(p.Wordlist))
	for i, line := range p.Wordlist {
		if e, err := wordlist.ParseLine(line, i+1, wordlist.Options{AllowEmptyValues: true}); err == nil {
			words = append(words, e.Word)
		} else {
			words = append(words, line)
		}
	}
	return "List of words: " + strings.Join(words, ", ")
}
