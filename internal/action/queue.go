package action

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kalambet/aiassist/internal/storage"
)

// JobPayload is the body of an execute_action job.
type JobPayload struct {
	ActionID int64 `json:"action_id"`
}

// JobStore is the subset of the SQLite job queue used for actions.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	RemovePendingActionJob(actionID int64) (bool, error)
}

// JobQueue schedules actions on the persistent job queue.
type JobQueue struct {
	store JobStore
}

func NewJobQueue(store JobStore) *JobQueue {
	return &JobQueue{store: store}
}

func (q *JobQueue) Enqueue(actionID int64) error {
	payload, err := json.Marshal(JobPayload{ActionID: actionID})
	if err != nil {
		return fmt.Errorf("encoding job payload: %w", err)
	}
	return q.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobTypeExecuteAction,
		PayloadJSON: string(payload),
	})
}

func (q *JobQueue) RemovePending(actionID int64) (bool, error) {
	return q.store.RemovePendingActionJob(actionID)
}
