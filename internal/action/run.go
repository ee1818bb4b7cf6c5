package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kalambet/aiassist/internal/storage"
)

// Run is the handle an executor receives for the action it is running.
// It reports progress back to the controller and exposes cancellation.
type Run struct {
	ctrl *Controller

	mu     sync.Mutex
	action storage.Action
}

// Action returns a snapshot of the action as last written through this run.
func (r *Run) Action() storage.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.action
}

// Params decodes the action data into v.
func (r *Run) Params(v any) error {
	r.mu.Lock()
	data := r.action.DataJSON
	r.mu.Unlock()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decoding action data: %w", err)
	}
	return nil
}

// Report persists progress and/or status text. Progress is clamped to [0,100].
func (r *Run) Report(ctx context.Context, progress *int, statusText *string) error {
	if progress != nil {
		p := clamp(*progress)
		progress = &p
	}
	r.mu.Lock()
	id := r.action.ID
	r.mu.Unlock()

	if err := r.ctrl.store.UpdateActionProgress(id, progress, statusText); err != nil {
		return fmt.Errorf("reporting progress for action %d: %w", id, err)
	}

	r.mu.Lock()
	if progress != nil {
		r.action.Progress = *progress
	}
	if statusText != nil {
		r.action.StatusText = *statusText
	}
	snapshot := r.action
	r.mu.Unlock()

	r.ctrl.publish(ctx, snapshot)
	return nil
}

// SetProgress is Report with only a progress value.
func (r *Run) SetProgress(ctx context.Context, progress int) error {
	return r.Report(ctx, &progress, nil)
}

// SetStatusText is Report with only a status text.
func (r *Run) SetStatusText(ctx context.Context, text string) error {
	return r.Report(ctx, nil, &text)
}

// Cancelled reports whether the user has cancelled the action since it
// started. It reads the persisted status.
func (r *Run) Cancelled() bool {
	r.mu.Lock()
	id := r.action.ID
	r.mu.Unlock()

	a, err := r.ctrl.store.GetAction(id)
	if err != nil {
		r.ctrl.logger.Warn("failed to check cancellation", "action_id", id, "error", err)
		return false
	}
	return a.Status == storage.StatusCancelled
}

// Checkpoint is called between items of work. It returns ErrCancelled if the
// user cancelled the action and ctx.Err() if the worker is shutting down.
func (r *Run) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Cancelled() {
		return ErrCancelled
	}
	return nil
}
