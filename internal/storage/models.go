package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveAction is returned by CreateAction when the scope already has a
// pending or running action. The concrete error is *ActiveActionError.
var ErrActiveAction = errors.New("active action exists")

// ActiveActionError carries the id of the action blocking a new launch.
type ActiveActionError struct {
	ExistingID int64
}

func (e *ActiveActionError) Error() string {
	return fmt.Sprintf("action %d is still active", e.ExistingID)
}

func (e *ActiveActionError) Is(target error) bool { return target == ErrActiveAction }

// Status is the lifecycle state of an Action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the action still occupies its scope.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

type Action struct {
	ID         int64
	UserID     int64
	ContextID  int64
	Name       string
	DataJSON   string // JSON object stored as text
	Status     Status
	StatusText string
	Progress   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Module is a content container actions run against. Its ID is the context id.
type Module struct {
	ID        int64
	Type      string // "glossary", "book", "quiz"
	Name      string
	CreatedAt time.Time
}

type GlossaryEntry struct {
	ID         int64
	ModuleID   int64
	UserID     int64
	Concept    string
	Definition string // HTML
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type BookChapter struct {
	ID        int64
	ModuleID  int64
	PageNum   int
	Title     string
	Content   string // HTML
	CreatedAt time.Time
	UpdatedAt time.Time
}

type QuizQuestion struct {
	ID           int64
	ModuleID     int64
	UserID       int64
	Category     string
	Name         string
	QType        string
	QuestionText string
	AnswersJSON  string // JSON array stored as text
	GIFT         string
	CreatedAt    time.Time
}
