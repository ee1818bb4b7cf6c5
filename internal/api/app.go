package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Store    *storage.Store
	Actions  *action.Controller
	Registry *extension.Registry
	Token    string
	FilesDir string // root of locally stored media, served under /files/; empty disables it
}

// NewAppHandler returns the HTTP API. Everything except /health and /files/
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(deps.FilesDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/extensions", handleListExtensions(deps))
		r.Get("/extensions/{type}/actions/{action}/form", handleFormFields(deps))

		r.Post("/modules", handleCreateModule(deps))
		r.Get("/modules", handleListModules(deps))
		r.Get("/modules/{id}", handleGetModule(deps))
		r.Get("/modules/{id}/content", handleModuleContent(deps))
		r.Get("/modules/{id}/actions", handleListActions(deps))
		r.With(RequireUser).Post("/modules/{id}/actions", handleLaunchAction(deps))
		r.Get("/modules/{id}/actions/active", handleActiveAction(deps))

		r.Get("/actions/{id}", handleGetAction(deps))
		r.Post("/actions/{id}/cancel", handleCancelAction(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ActionView is the wire form of an action.
type ActionView struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ContextID   int64           `json:"context_id"`
	Name        string          `json:"action_name"`
	Status      string          `json:"status"`
	StatusText  string          `json:"status_text"`
	Progress    int             `json:"progress"`
	Data        json.RawMessage `json:"data"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newActionView(a storage.Action, description string) ActionView {
	data := json.RawMessage(a.DataJSON)
	if !json.Valid(data) {
		data = json.RawMessage(`{}`)
	}
	return ActionView{
		ID:          a.ID,
		UserID:      a.UserID,
		ContextID:   a.ContextID,
		Name:        a.Name,
		Status:      string(a.Status),
		StatusText:  a.StatusText,
		Progress:    a.Progress,
		Data:        data,
		Description: description,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// ModuleView is the wire form of a module.
type ModuleView struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func newModuleView(m storage.Module) ModuleView {
	return ModuleView{ID: m.ID, Type: m.Type, Name: m.Name, CreatedAt: m.CreatedAt}
}

// ExtensionView lists the actions of one module type.
type ExtensionView struct {
	Type    string   `json:"type"`
	Actions []string `json:"actions"`
}

func listExtensions(reg *extension.Registry) []ExtensionView {
	out := []ExtensionView{}
	for _, typ := range reg.Types() {
		ext, _ := reg.Lookup(typ)
		out = append(out, ExtensionView{Type: typ, Actions: ext.Actions()})
	}
	return out
}

func handleListExtensions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listExtensions(deps.Registry))
	}
}

func handleFormFields(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ, name := chi.URLParam(r, "type"), chi.URLParam(r, "action")
		ext, ok := deps.Registry.Lookup(typ)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "no extension for module type %q", typ)
			return
		}
		if !extension.OneOf(name, ext.Actions()) {
			httpError(w, http.StatusNotFound, "not_found_error", "%s modules have no action %q", typ, name)
			return
		}
		writeJSON(w, http.StatusOK, ext.FormFields(name))
	}
}

type createModuleRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func handleCreateModule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createModuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if _, ok := deps.Registry.Lookup(req.Type); !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "type must be one of %s", strings.Join(deps.Registry.Types(), ", "))
			return
		}

		m := storage.Module{Type: req.Type, Name: req.Name}
		if err := deps.Store.CreateModule(&m); err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newModuleView(m))
	}
}

func handleListModules(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modules, err := deps.Store.ListModules()
		if err != nil {
			writeActionError(w, err)
			return
		}
		out := make([]ModuleView, 0, len(modules))
		for _, m := range modules {
			out = append(out, newModuleView(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetModule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		m, err := deps.Store.GetModule(id)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newModuleView(m))
	}
}

func handleModuleContent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		m, err := deps.Store.GetModule(id)
		if err != nil {
			writeActionError(w, err)
			return
		}

		var content any
		switch m.Type {
		case "glossary":
			entries, lerr := deps.Store.ListGlossaryEntries(id)
			content, err = orEmpty(entries), lerr
		case "book":
			chapters, lerr := deps.Store.ListBookChapters(id)
			content, err = orEmpty(chapters), lerr
		case "quiz":
			questions, lerr := deps.Store.ListQuizQuestions(id)
			content, err = orEmpty(questions), lerr
		default:
			content = []any{}
		}
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, content)
	}
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type launchRequest struct {
	Action string         `json:"action"`
	Data   extension.Form `json:"data"`
}

func handleLaunchAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contextID, ok := pathID(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req launchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Action == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "action is required")
			return
		}

		data, err := deps.Registry.Prepare(r.Context(), contextID, req.Action, req.Data)
		if err != nil {
			writeActionError(w, err)
			return
		}
		id, err := deps.Actions.Launch(r.Context(), userFromContext(r.Context()), contextID, req.Action, data)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"action_id": id,
			"status":    storage.StatusPending,
		})
	}
}

func handleListActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contextID, ok := pathID(w, r)
		if !ok {
			return
		}
		userID := int64(parseIntParam(r, "user", 0, 0))
		limit := parseIntParam(r, "limit", 20, 100)

		actions, err := deps.Store.ListActions(contextID, userID, limit)
		if err != nil {
			writeActionError(w, err)
			return
		}
		out := make([]ActionView, 0, len(actions))
		for _, a := range actions {
			out = append(out, newActionView(a, deps.Registry.Describe(a)))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleActiveAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contextID, ok := pathID(w, r)
		if !ok {
			return
		}
		userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		if err != nil || userID <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user query parameter must be a positive user id")
			return
		}

		a, err := deps.Actions.GetActiveAction(r.Context(), contextID, userID)
		if err != nil {
			writeActionError(w, err)
			return
		}
		if a == nil {
			writeJSON(w, http.StatusOK, map[string]any{"action_id": nil})
			return
		}
		view := newActionView(*a, deps.Registry.Describe(*a))
		writeJSON(w, http.StatusOK, map[string]any{"action_id": a.ID, "action": view})
	}
}

func handleGetAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		a, err := deps.Actions.GetStatus(r.Context(), id)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newActionView(a, deps.Registry.Describe(a)))
	}
}

func handleCancelAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		cancelled, err := deps.Actions.Cancel(r.Context(), id)
		if err != nil {
			writeActionError(w, err)
			return
		}
		a, err := deps.Actions.GetStatus(r.Context(), id)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cancelled": cancelled,
			"status":    a.Status,
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id %q", raw)
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
