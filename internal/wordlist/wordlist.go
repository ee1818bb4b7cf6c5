// Package wordlist parses the bulk word-list format used to seed glossary and
// book generation:
//
//	word[=translation][(key:value,...)]
//
// One entry per line. Blank lines and lines starting with '#' are ignored.
package wordlist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Default bounds for words and values, in characters.
const (
	DefaultMaxWordLen  = 100
	DefaultMaxValueLen = 1000
)

// DefaultMetaKeys is the set of metadata keys accepted inside a line's
// trailing block: definition, example, part of speech and note.
var DefaultMetaKeys = []string{"def", "ex", "pos", "note"}

var lineBreak = regexp.MustCompile(`\r\n|\n|\r|\x0b|\x0c|\x{85}|\x{2028}|\x{2029}`)

// Options bounds what a valid line may contain. The zero value is usable and
// is equivalent to DefaultOptions.
type Options struct {
	MaxWordLen       int
	MaxValueLen      int
	AllowEmptyValues bool
	AllowedMetaKeys  []string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxWordLen:      DefaultMaxWordLen,
		MaxValueLen:     DefaultMaxValueLen,
		AllowedMetaKeys: DefaultMetaKeys,
	}
}

func (o Options) normalized() Options {
	if o.MaxWordLen <= 0 {
		o.MaxWordLen = DefaultMaxWordLen
	}
	if o.MaxValueLen <= 0 {
		o.MaxValueLen = DefaultMaxValueLen
	}
	if len(o.AllowedMetaKeys) == 0 {
		o.AllowedMetaKeys = DefaultMetaKeys
	}
	return o
}

func (o Options) allowsKey(key string) bool {
	for _, k := range o.AllowedMetaKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Entry is one parsed line.
type Entry struct {
	Word        string            `json:"word"`
	Translation *string           `json:"translation"`
	Meta        map[string]string `json:"meta"`
	Line        int               `json:"line"`
}

// LineError is a parse failure tied to a 1-based line number.
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Result is the outcome of parsing a whole list. OK is true iff Errors is empty.
type Result struct {
	OK      bool        `json:"ok"`
	Errors  []LineError `json:"errors"`
	Entries []Entry     `json:"entries"`
}

// Messages renders every error as "line N: message".
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i := range r.Errors {
		out[i] = r.Errors[i].Error()
	}
	return out
}

// Lines splits text on any line break and returns the trimmed lines that
// carry content, keyed by their 1-based line number order.
func Lines(text string) []Line {
	var out []Line
	for i, raw := range lineBreak.Split(text, -1) {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Line{Number: i + 1, Text: line})
	}
	return out
}

// Line is a non-blank, non-comment input line.
type Line struct {
	Number int
	Text   string
}

// Parse validates every line of text and collects the resulting entries.
// Per-line failures do not stop processing. A word that repeats an earlier
// word (case-insensitively) is reported with both line numbers and dropped.
func Parse(text string, opts Options) Result {
	opts = opts.normalized()

	var res Result
	var parsed []Entry
	for _, l := range Lines(text) {
		e, err := ParseLine(l.Text, l.Number, opts)
		if err != nil {
			var lerr *LineError
			if !errors.As(err, &lerr) {
				lerr = &LineError{Line: l.Number, Message: err.Error()}
			}
			res.Errors = append(res.Errors, *lerr)
			continue
		}
		parsed = append(parsed, e)
	}

	seen := make(map[string]int, len(parsed))
	for _, e := range parsed {
		key := strings.ToLower(e.Word)
		if first, ok := seen[key]; ok {
			res.Errors = append(res.Errors, LineError{
				Line:    e.Line,
				Message: fmt.Sprintf("duplicate word %q (lines %d and %d)", e.Word, first, e.Line),
			})
			continue
		}
		seen[key] = e.Line
		res.Entries = append(res.Entries, e)
	}

	res.OK = len(res.Errors) == 0
	return res
}

// ParseLine parses a single already-trimmed line. Failures are *LineError.
func ParseLine(line string, lineNo int, opts Options) (Entry, error) {
	opts = opts.normalized()
	fail := func(format string, args ...any) (Entry, error) {
		return Entry{}, &LineError{Line: lineNo, Message: fmt.Sprintf(format, args...)}
	}

	head, block, ok := splitTrailingBlock(line)
	if !ok {
		return fail("unbalanced parentheses or quotes")
	}

	var word string
	var translation *string
	if i := strings.Index(head, "="); i >= 0 {
		word = strings.TrimSpace(head[:i])
		t := strings.TrimSpace(head[i+1:])
		translation = &t
	} else {
		word = strings.TrimSpace(head)
	}

	if word == "" || utf8.RuneCountInString(word) > opts.MaxWordLen {
		return fail("word is empty or longer than %d characters", opts.MaxWordLen)
	}

	meta := map[string]string{}
	if block != "" {
		for _, item := range splitMeta(block) {
			key, value, found := strings.Cut(item, ":")
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if !found || key == "" || !opts.allowsKey(key) || (!opts.AllowEmptyValues && value == "") {
				return fail("invalid metadata entry %q", strings.TrimSpace(item))
			}
			if utf8.RuneCountInString(value) > opts.MaxValueLen {
				return fail("metadata value for %q is longer than %d characters", key, opts.MaxValueLen)
			}
			meta[key] = value
		}
	}

	if translation != nil {
		n := utf8.RuneCountInString(*translation)
		if n > opts.MaxValueLen || (!opts.AllowEmptyValues && n == 0) {
			return fail("translation is empty or longer than %d characters", opts.MaxValueLen)
		}
		if n == 0 {
			translation = nil
		}
	}

	return Entry{Word: word, Translation: translation, Meta: meta, Line: lineNo}, nil
}

// splitTrailingBlock separates a line into its head and the contents of the
// outermost parenthesized block that closes at the very end of the line.
// Double quotes protect parentheses; a backslash escapes the next character.
// ok is false when a quote or an opening parenthesis is left open.
func splitTrailingBlock(line string) (head, block string, ok bool) {
	line = strings.TrimRight(line, " \t")

	var (
		depth    int
		lastOpen = -1
		inQuotes bool
		escaped  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '(':
			if depth == 0 {
				lastOpen = i
			}
			depth++
		case c == ')' && depth > 0:
			depth--
			if depth == 0 && strings.TrimSpace(line[i+1:]) == "" {
				return strings.TrimRight(line[:lastOpen], " \t"), line[lastOpen+1 : i], true
			}
		}
	}

	if inQuotes || depth > 0 {
		return "", "", false
	}
	return line, "", true
}

// splitMeta splits a block on commas. Quotes group text containing commas
// and are removed from the result; "" inside quotes is a literal quote and a
// backslash escapes the following character.
func splitMeta(block string) []string {
	var (
		items    []string
		cur      strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(block); i++ {
		c := block[i]
		switch {
		case c == '\\' && i+1 < len(block):
			i++
			cur.WriteByte(block[i])
		case c == '"':
			if inQuotes && i+1 < len(block) && block[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	items = append(items, cur.String())
	return items
}
