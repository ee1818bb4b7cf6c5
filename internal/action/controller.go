// Package action owns the lifecycle of asynchronous generation actions:
//
//	pending -> running -> finished | error
//	pending | running -> cancelled
//
// Launch creates and queues an action, a background worker calls Execute,
// and clients poll GetStatus until the action reaches a terminal state.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/aiassist/internal/events"
	"github.com/kalambet/aiassist/internal/storage"
)

// Status texts written by the controller itself.
const (
	TextStarting  = "Starting..."
	TextFinished  = "The action has been completed successfully."
	TextCancelled = "The action has been cancelled by the user."
	TextQueueFail = "The action could not be queued."
)

// Store persists action records.
type Store interface {
	CreateAction(a *storage.Action) error
	GetAction(id int64) (storage.Action, error)
	ActiveAction(contextID, userID int64) (storage.Action, error)
	StartAction(id int64, statusText string) (bool, error)
	SetActionStatus(id int64, status storage.Status, statusText string, progress *int) error
	UpdateActionProgress(id int64, progress *int, statusText *string) error
	CancelAction(id int64, statusText string) (bool, error)
}

// Queue schedules background execution.
type Queue interface {
	Enqueue(actionID int64) error
	RemovePending(actionID int64) (bool, error)
}

// Executor runs the module-specific work of one action.
type Executor interface {
	Execute(ctx context.Context, run *Run) error
}

// Resolver finds the executor for an action name within a context.
type Resolver interface {
	Executor(ctx context.Context, contextID int64, actionName string) (Executor, error)
}

// Controller drives actions through their lifecycle.
type Controller struct {
	store    Store
	queue    Queue
	resolver Resolver
	events   events.Publisher
	logger   *slog.Logger
}

// NewController creates a Controller. A nil publisher discards events.
func NewController(store Store, queue Queue, resolver Resolver, pub events.Publisher) *Controller {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Controller{
		store:    store,
		queue:    queue,
		resolver: resolver,
		events:   pub,
		logger:   slog.Default(),
	}
}

// Launch creates a pending action for (contextID, userID) and queues it.
// It fails with *ConflictError when the scope already has an active action.
func (c *Controller) Launch(ctx context.Context, userID, contextID int64, name string, params map[string]any) (int64, error) {
	a, err := c.create(ctx, userID, contextID, name, params)
	if err != nil {
		return 0, err
	}

	if err := c.queue.Enqueue(a.ID); err != nil {
		// Nothing will ever run it, so release the scope.
		if serr := c.store.SetActionStatus(a.ID, storage.StatusError, TextQueueFail, nil); serr != nil {
			c.logger.Error("failed to mark unqueued action", "action_id", a.ID, "error", serr)
		}
		return 0, fmt.Errorf("queueing action %d: %w", a.ID, err)
	}

	c.logger.Info("action launched", "action_id", a.ID, "action", name, "context_id", contextID, "user_id", userID)
	return a.ID, nil
}

// RunNow creates an action and executes it in the calling goroutine,
// bypassing the queue. It returns the action as it stands afterwards.
func (c *Controller) RunNow(ctx context.Context, userID, contextID int64, name string, params map[string]any) (storage.Action, error) {
	a, err := c.create(ctx, userID, contextID, name, params)
	if err != nil {
		return storage.Action{}, err
	}
	execErr := c.Execute(ctx, a.ID)
	final, err := c.GetStatus(ctx, a.ID)
	if err != nil {
		return storage.Action{}, err
	}
	return final, execErr
}

func (c *Controller) create(ctx context.Context, userID, contextID int64, name string, params map[string]any) (storage.Action, error) {
	if name == "" {
		return storage.Action{}, errors.New("action name is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return storage.Action{}, fmt.Errorf("encoding action data: %w", err)
	}

	a := storage.Action{UserID: userID, ContextID: contextID, Name: name, DataJSON: string(data)}
	if err := c.store.CreateAction(&a); err != nil {
		var active *storage.ActiveActionError
		if errors.As(err, &active) {
			return storage.Action{}, &ConflictError{ContextID: contextID, UserID: userID, ExistingID: active.ExistingID}
		}
		return storage.Action{}, fmt.Errorf("creating action: %w", err)
	}
	c.publish(ctx, a)
	return a, nil
}

// Execute runs a pending action to a terminal state. A failure from the
// executor, including a panic, is recorded as an error status and returned
// as *ExecutionError. Actions that are no longer pending are skipped, which
// makes redelivered jobs harmless.
func (c *Controller) Execute(ctx context.Context, id int64) error {
	a, err := c.load(id)
	if err != nil {
		return err
	}
	if a.Status != storage.StatusPending {
		c.logger.Info("skipping action that is not pending", "action_id", id, "status", a.Status)
		return nil
	}

	exec, err := c.resolver.Executor(ctx, a.ContextID, a.Name)
	if err != nil {
		return c.fail(ctx, a, "", err)
	}

	started, err := c.store.StartAction(id, TextStarting)
	if err != nil {
		return fmt.Errorf("starting action %d: %w", id, err)
	}
	if !started {
		c.logger.Info("skipping action that left pending before it started", "action_id", id)
		return nil
	}
	a.Status, a.StatusText, a.Progress = storage.StatusRunning, TextStarting, 0
	c.publish(ctx, a)

	run := &Run{ctrl: c, action: a}
	err = invoke(ctx, exec, run)
	a = run.Action()

	switch {
	case err == nil:
		full := 100
		if err := c.store.SetActionStatus(id, storage.StatusFinished, TextFinished, &full); err != nil {
			return c.fail(ctx, a, a.StatusText, fmt.Errorf("recording completion: %w", err))
		}
		a.Status, a.StatusText, a.Progress = storage.StatusFinished, TextFinished, 100
		c.publish(ctx, a)
		c.logger.Info("action finished", "action_id", id)
		return nil
	case errors.Is(err, ErrCancelled):
		c.logger.Info("action stopped after cancellation", "action_id", id, "progress", a.Progress)
		return nil
	default:
		return c.fail(ctx, a, a.StatusText, err)
	}
}

// invoke calls the executor and turns a panic into an error.
func invoke(ctx context.Context, exec Executor, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return exec.Execute(ctx, run)
}

func (c *Controller) fail(ctx context.Context, a storage.Action, lastText string, cause error) error {
	text := fmt.Sprintf("failed: %v", cause)
	if lastText != "" {
		text = fmt.Sprintf("%s (failed: %v)", lastText, cause)
	}
	if err := c.store.SetActionStatus(a.ID, storage.StatusError, text, nil); err != nil {
		c.logger.Error("failed to record action error", "action_id", a.ID, "error", err, "cause", cause)
	}
	a.Status, a.StatusText = storage.StatusError, text
	c.publish(ctx, a)
	c.logger.Warn("action failed", "action_id", a.ID, "error", cause)
	return &ExecutionError{ActionID: a.ID, Err: cause}
}

// ReportProgress records progress and/or status text for a running action.
// Progress is clamped to [0,100]. Either argument may be nil.
func (c *Controller) ReportProgress(ctx context.Context, id int64, progress *int, statusText *string) error {
	if progress != nil {
		p := clamp(*progress)
		progress = &p
	}
	if err := c.store.UpdateActionProgress(id, progress, statusText); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	a, err := c.load(id)
	if err != nil {
		return err
	}
	c.publish(ctx, a)
	return nil
}

// Cancel moves a pending or running action to cancelled and drops its
// queued job if no worker has claimed it yet. A running executor is not
// interrupted; it notices at its next checkpoint. Cancel reports false when
// the action had already reached a terminal state.
func (c *Controller) Cancel(ctx context.Context, id int64) (bool, error) {
	ok, err := c.store.CancelAction(id, TextCancelled)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	if !ok {
		return false, nil
	}

	if c.queue != nil {
		removed, err := c.queue.RemovePending(id)
		if err != nil {
			c.logger.Warn("failed to remove queued job", "action_id", id, "error", err)
		} else if removed {
			c.logger.Debug("removed queued job", "action_id", id)
		}
	}

	if a, err := c.load(id); err == nil {
		c.publish(ctx, a)
	}
	c.logger.Info("action cancelled", "action_id", id)
	return true, nil
}

// GetStatus returns the current action record.
func (c *Controller) GetStatus(_ context.Context, id int64) (storage.Action, error) {
	return c.load(id)
}

// GetActiveAction returns the newest pending or running action for the
// scope, or nil when there is none.
func (c *Controller) GetActiveAction(_ context.Context, contextID, userID int64) (*storage.Action, error) {
	a, err := c.store.ActiveAction(contextID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Controller) load(id int64) (storage.Action, error) {
	a, err := c.store.GetAction(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Action{}, ErrNotFound
	}
	if err != nil {
		return storage.Action{}, fmt.Errorf("loading action %d: %w", id, err)
	}
	return a, nil
}

func (c *Controller) publish(ctx context.Context, a storage.Action) {
	ev := events.ActionEvent{
		ActionID:   a.ID,
		ContextID:  a.ContextID,
		UserID:     a.UserID,
		ActionName: a.Name,
		Status:     string(a.Status),
		Progress:   a.Progress,
		StatusText: a.StatusText,
		Timestamp:  time.Now().UTC(),
	}
	if err := c.events.PublishAction(ctx, ev); err != nil {
		c.logger.Warn("failed to publish action event", "action_id", a.ID, "error", err)
	}
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
