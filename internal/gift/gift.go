// Package gift parses single questions written in the GIFT text format.
//
//	::Title:: [html]Question text { =right #feedback ~wrong ~%50%half }
//
// Supported types are multiple choice, true/false, short answer, numerical,
// matching, essay and description. Special characters inside text are
// escaped with a backslash: \~ \= \# \{ \} \:
package gift

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Type string

const (
	MultiChoice Type = "multichoice"
	TrueFalse   Type = "truefalse"
	ShortAnswer Type = "shortanswer"
	Numerical   Type = "numerical"
	Matching    Type = "match"
	Essay       Type = "essay"
	Description Type = "description"
)

var (
	ErrUnclosedBlock   = errors.New("answer block is not closed")
	ErrEmptyQuestion   = errors.New("question text is empty")
	ErrNoCorrectAnswer = errors.New("no correct answer")
	ErrWeight          = errors.New("answer weight must be between -100 and 100")
	ErrNumber          = errors.New("invalid numerical answer")
	ErrMatching        = errors.New("matching questions need at least two pairs")
)

// Answer is one answer option. Fraction is the credit in [-1,1].
type Answer struct {
	Text      string  `json:"text"`
	Fraction  float64 `json:"fraction"`
	Feedback  string  `json:"feedback,omitempty"`
	Match     string  `json:"match,omitempty"`     // matching: the right-hand side
	Tolerance float64 `json:"tolerance,omitempty"` // numerical
}

type Question struct {
	Name     string
	Format   string // "moodle", "html", "plain", "markdown"
	Text     string
	Type     Type
	Answers  []Answer
	Feedback string // general feedback, introduced by ####
}

var formats = []string{"moodle", "html", "plain", "markdown"}

// Parse reads one question. Comment lines starting with // are ignored.
func Parse(src string) (Question, error) {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "//") {
			continue
		}
		lines = append(lines, l)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))

	q := Question{Format: "moodle"}

	if strings.HasPrefix(text, "::") {
		if end := indexUnescaped(text, "::", 2); end >= 0 {
			q.Name = unescape(strings.TrimSpace(text[2:end]))
			text = strings.TrimSpace(text[end+2:])
		}
	}

	if strings.HasPrefix(text, "[") {
		if end := strings.IndexByte(text, ']'); end > 0 {
			if f := strings.ToLower(text[1:end]); contains(formats, f) {
				q.Format = f
				text = strings.TrimSpace(text[end+1:])
			}
		}
	}

	open := indexUnescaped(text, "{", 0)
	if open < 0 {
		if indexUnescaped(text, "}", 0) >= 0 {
			return Question{}, fmt.Errorf("%w: '}' without '{'", ErrUnclosedBlock)
		}
		q.Type = Description
		q.Text = unescape(text)
		if q.Text == "" {
			return Question{}, ErrEmptyQuestion
		}
		return q, nil
	}
	end := lastIndexUnescaped(text, "}")
	if end < open {
		return Question{}, ErrUnclosedBlock
	}

	before := strings.TrimSpace(text[:open])
	after := strings.TrimSpace(text[end+1:])
	block := strings.TrimSpace(text[open+1 : end])

	q.Text = unescape(before)
	if after != "" {
		// Missing word: the blank stands where the answer block was.
		q.Text = strings.TrimSpace(q.Text + " _____ " + unescape(after))
	}
	if q.Text == "" {
		return Question{}, ErrEmptyQuestion
	}

	if i := indexUnescaped(block, "####", 0); i >= 0 {
		q.Feedback = unescape(strings.TrimSpace(block[i+4:]))
		block = strings.TrimSpace(block[:i])
	}

	var err error
	switch {
	case block == "":
		q.Type = Essay
	case strings.HasPrefix(block, "#"):
		q.Type = Numerical
		q.Answers, err = parseNumerical(strings.TrimSpace(block[1:]))
	case isTrueFalse(block):
		q.Type = TrueFalse
		q.Answers = parseTrueFalse(block)
	case indexUnescaped(block, "->", 0) >= 0:
		q.Type = Matching
		q.Answers, err = parseMatching(block)
	case indexUnescaped(block, "~", 0) >= 0:
		q.Type = MultiChoice
		q.Answers, err = parseChoices(block)
	default:
		q.Type = ShortAnswer
		q.Answers, err = parseChoices(block)
	}
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func isTrueFalse(block string) bool {
	head := block
	if i := indexUnescaped(block, "#", 0); i >= 0 {
		head = block[:i]
	}
	switch strings.ToUpper(strings.TrimSpace(head)) {
	case "T", "F", "TRUE", "FALSE":
		return true
	}
	return false
}

// parseTrueFalse handles {T#wrong feedback#right feedback}.
func parseTrueFalse(block string) []Answer {
	parts := splitUnescaped(block, '#')
	correct := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(parts[0])), "T")

	var wrongFB, rightFB string
	if len(parts) > 1 {
		wrongFB = unescape(strings.TrimSpace(parts[1]))
	}
	if len(parts) > 2 {
		rightFB = unescape(strings.TrimSpace(parts[2]))
	}

	t := Answer{Text: "true"}
	f := Answer{Text: "false"}
	if correct {
		t.Fraction, t.Feedback, f.Feedback = 1, rightFB, wrongFB
	} else {
		f.Fraction, f.Feedback, t.Feedback = 1, rightFB, wrongFB
	}
	return []Answer{t, f}
}

// parseChoices handles =right ~wrong ~%25%partial answers, each with an
// optional #feedback.
func parseChoices(block string) ([]Answer, error) {
	var answers []Answer
	correct := false
	for _, item := range splitAnswers(block) {
		a := Answer{}
		if item.marker == '=' {
			a.Fraction = 1
		}
		body := item.text
		if w, rest, ok, err := parseWeight(body); err != nil {
			return nil, err
		} else if ok {
			a.Fraction = w
			body = rest
		}
		a.Text, a.Feedback = splitFeedback(body)
		if a.Fraction > 0 {
			correct = true
		}
		answers = append(answers, a)
	}
	if !correct {
		return nil, ErrNoCorrectAnswer
	}
	return answers, nil
}

func parseMatching(block string) ([]Answer, error) {
	var answers []Answer
	for _, item := range splitAnswers(block) {
		if item.marker != '=' {
			return nil, fmt.Errorf("%w: unexpected %q", ErrMatching, string(item.marker))
		}
		i := indexUnescaped(item.text, "->", 0)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q has no '->'", ErrMatching, item.text)
		}
		answers = append(answers, Answer{
			Text:     unescape(strings.TrimSpace(item.text[:i])),
			Match:    unescape(strings.TrimSpace(item.text[i+2:])),
			Fraction: 1,
		})
	}
	if len(answers) < 2 {
		return nil, ErrMatching
	}
	return answers, nil
}

// parseNumerical handles {#3:2}, {#1..5} and {# =1822:0 =%50%1822:2 }.
func parseNumerical(block string) ([]Answer, error) {
	items := splitAnswers(block)
	if len(items) == 0 {
		items = []answerItem{{marker: '=', text: block}}
	}

	var answers []Answer
	correct := false
	for _, item := range items {
		a := Answer{}
		if item.marker == '=' {
			a.Fraction = 1
		}
		body := item.text
		if w, rest, ok, err := parseWeight(body); err != nil {
			return nil, err
		} else if ok {
			a.Fraction = w
			body = rest
		}
		value, feedback := splitFeedback(body)
		a.Feedback = feedback

		var err error
		a.Text, a.Tolerance, err = parseNumber(value)
		if err != nil {
			return nil, err
		}
		if a.Fraction > 0 {
			correct = true
		}
		answers = append(answers, a)
	}
	if !correct {
		return nil, ErrNoCorrectAnswer
	}
	return answers, nil
}

func parseNumber(s string) (string, float64, error) {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, ".."); ok {
		from, err1 := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		to, err2 := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err1 != nil || err2 != nil || to < from {
			return "", 0, fmt.Errorf("%w: %q", ErrNumber, s)
		}
		mid := (from + to) / 2
		return strconv.FormatFloat(mid, 'f', -1, 64), (to - from) / 2, nil
	}
	val, tol, hasTol := strings.Cut(s, ":")
	if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrNumber, s)
	}
	var tolerance float64
	if hasTol {
		t, err := strconv.ParseFloat(strings.TrimSpace(tol), 64)
		if err != nil || t < 0 {
			return "", 0, fmt.Errorf("%w: %q", ErrNumber, s)
		}
		tolerance = t
	}
	return strings.TrimSpace(val), tolerance, nil
}

// parseWeight reads a leading %n% weight and returns it as a fraction.
func parseWeight(s string) (float64, string, bool, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "%") {
		return 0, s, false, nil
	}
	end := strings.IndexByte(s[1:], '%')
	if end < 0 {
		return 0, s, false, nil
	}
	raw := s[1 : end+1]
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, s, false, fmt.Errorf("%w: %q", ErrWeight, raw)
	}
	if w < -100 || w > 100 {
		return 0, s, false, fmt.Errorf("%w: %s", ErrWeight, raw)
	}
	return w / 100, strings.TrimSpace(s[end+2:]), true, nil
}

func splitFeedback(s string) (string, string) {
	if i := indexUnescaped(s, "#", 0); i >= 0 {
		return unescape(strings.TrimSpace(s[:i])), unescape(strings.TrimSpace(s[i+1:]))
	}
	return unescape(strings.TrimSpace(s)), ""
}

type answerItem struct {
	marker byte
	text   string
}

// splitAnswers cuts a block at every unescaped '=' or '~' that starts an
// answer. Text before the first marker is dropped.
func splitAnswers(block string) []answerItem {
	var items []answerItem
	start := -1
	var marker byte
	for i := 0; i < len(block); i++ {
		c := block[i]
		if c == '\\' {
			i++
			continue
		}
		if c != '=' && c != '~' {
			continue
		}
		// An '=' glued to preceding text, as in x=1, belongs to the answer.
		if c == '=' && i > 0 && block[i-1] != ' ' && block[i-1] != '\n' && block[i-1] != '\t' && start >= 0 {
			continue
		}
		if start >= 0 {
			items = append(items, answerItem{marker: marker, text: strings.TrimSpace(block[start:i])})
		}
		marker, start = c, i+1
	}
	if start >= 0 {
		items = append(items, answerItem{marker: marker, text: strings.TrimSpace(block[start:])})
	}
	return items
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func indexUnescaped(s, sub string, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}

func lastIndexUnescaped(s, sub string) int {
	last := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(s[i:], sub) {
			last = i
		}
	}
	return last
}

var unescaper = strings.NewReplacer(
	`\~`, "~", `\=`, "=", `\#`, "#", `\{`, "{", `\}`, "}", `\:`, ":", `\n`, "\n", `\\`, `\`,
)

func unescape(s string) string {
	return unescaper.Replace(s)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
