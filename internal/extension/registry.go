package extension

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/storage"
)

var (
	// ErrUnknownContext means no module exists for a context id.
	ErrUnknownContext = errors.New("unknown context")
	// ErrUnsupported means the module type has no extension or the
	// extension does not offer the requested action.
	ErrUnsupported = errors.New("unsupported action")
)

// ModuleLookup resolves a context id to its module.
type ModuleLookup interface {
	GetModule(id int64) (storage.Module, error)
}

// Registry maps module types to their extensions.
type Registry struct {
	modules ModuleLookup

	mu         sync.RWMutex
	extensions map[string]Extension
}

// NewRegistry returns an empty registry resolving contexts through modules.
func NewRegistry(modules ModuleLookup) *Registry {
	return &Registry{modules: modules, extensions: map[string]Extension{}}
}

// Register installs ext under its module type.
func (r *Registry) Register(ext Extension) error {
	if ext == nil {
		return fmt.Errorf("extension: extension is required")
	}
	typ := ext.ModuleType()
	if typ == "" {
		return fmt.Errorf("extension: module type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extensions[typ]; exists {
		return fmt.Errorf("extension: %s already registered", typ)
	}
	r.extensions[typ] = ext
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(ext Extension) {
	if err := r.Register(ext); err != nil {
		panic(err)
	}
}

// Lookup returns the extension for a module type.
func (r *Registry) Lookup(moduleType string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[moduleType]
	return ext, ok
}

// Types returns the registered module types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.extensions))
	for t := range r.extensions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ForContext returns the module for contextID and its extension.
func (r *Registry) ForContext(contextID int64) (Extension, storage.Module, error) {
	m, err := r.modules.GetModule(contextID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.Module{}, fmt.Errorf("%w: %d", ErrUnknownContext, contextID)
	}
	if err != nil {
		return nil, storage.Module{}, fmt.Errorf("loading module %d: %w", contextID, err)
	}
	ext, ok := r.Lookup(m.Type)
	if !ok {
		return nil, m, fmt.Errorf("%w: no extension for module type %q", ErrUnsupported, m.Type)
	}
	return ext, m, nil
}

func (r *Registry) forAction(contextID int64, actionName string) (Extension, error) {
	ext, m, err := r.ForContext(contextID)
	if err != nil {
		return nil, err
	}
	if !OneOf(actionName, ext.Actions()) {
		return nil, fmt.Errorf("%w: %s modules do not support %q", ErrUnsupported, m.Type, actionName)
	}
	return ext, nil
}

// Executor implements action.Resolver.
func (r *Registry) Executor(_ context.Context, contextID int64, actionName string) (action.Executor, error) {
	return r.forAction(contextID, actionName)
}

// Prepare validates and processes a form submitted for actionName in
// contextID, returning the data to launch the action with. Invalid input
// yields *action.ValidationError.
func (r *Registry) Prepare(_ context.Context, contextID int64, actionName string, form Form) (map[string]any, error) {
	ext, err := r.forAction(contextID, actionName)
	if err != nil {
		return nil, err
	}
	if form == nil {
		form = Form{}
	}
	if err := ext.Validate(actionName, form); err != nil {
		return nil, err
	}
	return ext.Process(actionName, form)
}

// Describe renders the status summary of a, or "" when its module is gone.
func (r *Registry) Describe(a storage.Action) string {
	ext, _, err := r.ForContext(a.ContextID)
	if err != nil {
		return ""
	}
	return ext.Describe(a)
}
