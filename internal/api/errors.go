package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeError(w, code, errType, fmt.Sprintf(format, args...), nil)
}

func writeError(w http.ResponseWriter, code int, errType, msg string, extra map[string]any) {
	body := map[string]any{
		"message": msg,
		"type":    errType,
	}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": body})
}

// writeActionError maps controller, registry and storage errors to HTTP
// responses.
func writeActionError(w http.ResponseWriter, err error) {
	var (
		verr     *action.ValidationError
		conflict *action.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		extra := map[string]any{"fields": verr.Fields}
		if len(verr.Problems) > 0 {
			extra["problems"] = verr.Problems
		}
		writeError(w, http.StatusBadRequest, "invalid_request_error", verr.Error(), extra)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "conflict_error", conflict.Error(),
			map[string]any{"existing_action_id": conflict.ExistingID})
	case errors.Is(err, action.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, extension.ErrUnknownContext):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, extension.ErrUnsupported):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "server_error", "internal error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
