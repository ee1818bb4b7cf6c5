// Package worker executes queued actions in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// ActionExecutor runs one action to a terminal state.
type ActionExecutor interface {
	Execute(ctx context.Context, actionID int64) error
}

// Worker processes execute_action jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	exec   ActionExecutor
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, exec ActionExecutor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		exec:   exec,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single execute_action job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobTypeExecuteAction})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// processJob returns an error only when the job should be retried. An
// execution failure is already recorded on the action, so the job is done.
func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload action.JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	err := w.exec.Execute(ctx, payload.ActionID)
	var execErr *action.ExecutionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &execErr):
		w.logger.Info("action ended with error", "job_id", job.ID, "action_id", payload.ActionID, "error", execErr.Err)
		return nil
	case errors.Is(err, action.ErrNotFound):
		w.logger.Warn("dropping job for missing action", "job_id", job.ID, "action_id", payload.ActionID)
		return nil
	}
	return fmt.Errorf("executing action %d: %w", payload.ActionID, err)
}
