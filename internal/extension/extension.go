// Package extension connects module types (glossary, book, quiz) to the
// actions they support. Each module type registers one Extension that
// describes its form, validates and normalizes submitted data, and runs the
// generation work.
package extension

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/storage"
)

// Extension is the per-module-type plugin.
type Extension interface {
	// ModuleType is the module type this extension serves.
	ModuleType() string
	// Actions lists the action names the extension can run.
	Actions() []string
	// FormFields describes the input form for an action.
	FormFields(actionName string) []Field
	// Validate checks submitted form data. It returns a
	// *action.ValidationError when the input is rejected.
	Validate(actionName string, form Form) error
	// Process turns validated form data into the stored action data.
	Process(actionName string, form Form) (map[string]any, error)
	// Execute runs the action.
	Execute(ctx context.Context, run *action.Run) error
	// Describe summarizes a launched action for status views.
	Describe(a storage.Action) string
}

// Field describes one input of an action form.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "text", "textarea", "select", "number"
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// Form is submitted form data, typically decoded from JSON.
type Form map[string]any

// String returns the value for key as a trimmed string. Numbers are
// formatted; missing keys and other types yield "".
func (f Form) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

// StringOr returns String(key), or def when it is empty.
func (f Form) StringOr(key, def string) string {
	if s := f.String(key); s != "" {
		return s
	}
	return def
}

// Int returns the value for key as an integer, or def when it is absent.
func (f Form) Int(key string, def int) (int, error) {
	switch v := f[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be a whole number", key)
}

// OneOf reports whether v is in options.
func OneOf(v string, options []string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
