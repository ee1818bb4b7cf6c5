package gift

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Question
	}{
		{
			name: "true false",
			src:  "::Q1:: 1+1=2 {T}",
			want: Question{Name: "Q1", Format: "moodle", Text: "1+1=2", Type: TrueFalse, Answers: []Answer{
				{Text: "true", Fraction: 1},
				{Text: "false"},
			}},
		},
		{
			name: "false with feedback",
			src:  "The sun is cold. {FALSE#It is hot, not cold.#Right, it is hot.}",
			want: Question{Format: "moodle", Text: "The sun is cold.", Type: TrueFalse, Answers: []Answer{
				{Text: "true", Feedback: "It is hot, not cold."},
				{Text: "false", Fraction: 1, Feedback: "Right, it is hot."},
			}},
		},
		{
			name: "multiple choice with feedback",
			src: "::Q2:: What's between orange and green in the spectrum?\n" +
				"{ =yellow # right; good! ~red # wrong, it's yellow ~blue # wrong, it's yellow }",
			want: Question{Name: "Q2", Format: "moodle", Text: "What's between orange and green in the spectrum?", Type: MultiChoice, Answers: []Answer{
				{Text: "yellow", Fraction: 1, Feedback: "right; good!"},
				{Text: "red", Feedback: "wrong, it's yellow"},
				{Text: "blue", Feedback: "wrong, it's yellow"},
			}},
		},
		{
			name: "weighted choices",
			src:  "Pick primes. {~%50%2 ~%50%3 ~%-100%4}",
			want: Question{Format: "moodle", Text: "Pick primes.", Type: MultiChoice, Answers: []Answer{
				{Text: "2", Fraction: 0.5},
				{Text: "3", Fraction: 0.5},
				{Text: "4", Fraction: -1},
			}},
		},
		{
			name: "short answer with missing word",
			src:  "::Q3:: Two plus {=two =2} equals four.",
			want: Question{Name: "Q3", Format: "moodle", Text: "Two plus _____ equals four.", Type: ShortAnswer, Answers: []Answer{
				{Text: "two", Fraction: 1},
				{Text: "2", Fraction: 1},
			}},
		},
		{
			name: "matching",
			src:  "::Q4:: Which animal eats which food? { =cat -> cat food =dog -> dog food }",
			want: Question{Name: "Q4", Format: "moodle", Text: "Which animal eats which food?", Type: Matching, Answers: []Answer{
				{Text: "cat", Match: "cat food", Fraction: 1},
				{Text: "dog", Match: "dog food", Fraction: 1},
			}},
		},
		{
			name: "numerical with tolerance",
			src:  "::Q5:: What is a number from 1 to 5? {#3:2}",
			want: Question{Name: "Q5", Format: "moodle", Text: "What is a number from 1 to 5?", Type: Numerical, Answers: []Answer{
				{Text: "3", Fraction: 1, Tolerance: 2},
			}},
		},
		{
			name: "numerical range",
			src:  "::Q6:: What is a number from 1 to 5? {#1..5}",
			want: Question{Name: "Q6", Format: "moodle", Text: "What is a number from 1 to 5?", Type: Numerical, Answers: []Answer{
				{Text: "3", Fraction: 1, Tolerance: 2},
			}},
		},
		{
			name: "numerical with several answers",
			src: "::Q7:: When was Ulysses S. Grant born? {#\n" +
				"    =1822:0      # Correct! Full credit.\n" +
				"    =%50%1822:2  # He was born in 1822. Half credit for being close.\n" +
				"}",
			want: Question{Name: "Q7", Format: "moodle", Text: "When was Ulysses S. Grant born?", Type: Numerical, Answers: []Answer{
				{Text: "1822", Fraction: 1, Feedback: "Correct! Full credit."},
				{Text: "1822", Fraction: 0.5, Tolerance: 2, Feedback: "He was born in 1822. Half credit for being close."},
			}},
		},
		{
			name: "essay with format",
			src:  "[html]Describe <b>your</b> weekend. {}",
			want: Question{Format: "html", Text: "Describe <b>your</b> weekend.", Type: Essay},
		},
		{
			name: "description with comment",
			src:  "// generated\nRead the text below carefully.",
			want: Question{Format: "moodle", Text: "Read the text below carefully.", Type: Description},
		},
		{
			name: "escapes and general feedback",
			src:  `What is 2\=1+1 called? {=an \{equation\} ~a poem #### Equals signs make equations.}`,
			want: Question{Format: "moodle", Text: "What is 2=1+1 called?", Type: MultiChoice, Feedback: "Equals signs make equations.", Answers: []Answer{
				{Text: "an {equation}", Fraction: 1},
				{Text: "a poem"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unclosed block", "Capital of France? {=Paris ~Lyon", ErrUnclosedBlock},
		{"stray close", "Capital of France? =Paris}", ErrUnclosedBlock},
		{"empty question", "::Q:: {=Paris ~Lyon}", ErrEmptyQuestion},
		{"empty input", "   ", ErrEmptyQuestion},
		{"no correct answer", "Capital of France? {~Paris ~Lyon}", ErrNoCorrectAnswer},
		{"weight out of range", "Capital of France? {~%150%Paris ~Lyon}", ErrWeight},
		{"bad number", "How many? {#lots}", ErrNumber},
		{"single match", "Match it. {=a -> b}", ErrMatching},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) err = %v, want %v", tt.src, err, tt.want)
			}
		})
	}
}
