package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned for operations on an unknown action id.
var ErrNotFound = errors.New("action not found")

// ErrCancelled is returned by executors that stop because the user
// cancelled the action. Execute leaves the cancelled status in place.
var ErrCancelled = errors.New("action cancelled")

// ConflictError means the scope already has a pending or running action.
// Callers should send the user to ExistingID instead of retrying.
type ConflictError struct {
	ContextID  int64
	UserID     int64
	ExistingID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an action is already in progress for context %d (action %d)", e.ContextID, e.ExistingID)
}

// ValidationError reports user input rejected before any action is created.
// Fields maps form field names to messages; Problems holds messages that are
// not tied to one field.
type ValidationError struct {
	Fields   map[string]string
	Problems []string
}

func (e *ValidationError) Error() string {
	var parts []string
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	parts = append(parts, e.Problems...)
	if len(parts) == 0 {
		return "invalid input"
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ExecutionError wraps a failure raised while running an action. The
// failure has already been recorded on the action.
type ExecutionError struct {
	ActionID int64
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing action %d: %v", e.ActionID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
