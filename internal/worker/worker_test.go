package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/storage"
)

type mockExecutor struct {
	mu     sync.Mutex
	ids    []int64
	execFn func(ctx context.Context, id int64) error
}

func (m *mockExecutor) Execute(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	if m.execFn == nil {
		return nil
	}
	return m.execFn(ctx, id)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, store *storage.Store, jobID string, actionID int64) {
	t.Helper()
	payload, _ := json.Marshal(action.JobPayload{ActionID: actionID})
	job := storage.Job{
		ID:          jobID,
		Type:        storage.JobTypeExecuteAction,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, id string) storage.Job {
	t.Helper()
	j, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", id, err)
	}
	return j
}

func TestWorker_ExecutesAction(t *testing.T) {
	store := openTestStore(t)
	if err := action.NewJobQueue(store).Enqueue(42); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	exec := &mockExecutor{}
	w := NewWorker(store, exec, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if len(exec.ids) != 1 || exec.ids[0] != 42 {
		t.Errorf("executed %v, want [42]", exec.ids)
	}

	didWork, err = w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("second RunOnce = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_ExecutionErrorCompletesJob(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "job-7", 7)

	w := NewWorker(store, &mockExecutor{execFn: func(context.Context, int64) error {
		return &action.ExecutionError{ActionID: 7, Err: errors.New("model refused")}
	}}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := jobStatus(t, store, "job-7"); got.Status != "completed" || got.Attempts != 0 {
		t.Errorf("job = %s/%d attempts, want completed/0", got.Status, got.Attempts)
	}
}

func TestWorker_MissingActionCompletesJob(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "job-99", 99)
	w := NewWorker(store, &mockExecutor{execFn: func(context.Context, int64) error {
		return action.ErrNotFound
	}}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}
	if got := jobStatus(t, store, "job-99"); got.Status != "completed" {
		t.Errorf("job status = %q, want completed", got.Status)
	}
}

func TestWorker_InfrastructureErrorRetries(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "job-5", 5)

	var calls atomic.Int32
	w := NewWorker(store, &mockExecutor{execFn: func(context.Context, int64) error {
		calls.Add(1)
		return errors.New("database is locked")
	}}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}

	got := jobStatus(t, store, "job-5")
	if got.Status != "pending" || got.Attempts != 1 || got.LastError != "executing action 5: database is locked" {
		t.Errorf("job = %+v, want pending retry after 1 attempt", got)
	}
	if !got.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter = %v, want a backoff in the future", got.RunAfter)
	}

	// Backoff keeps it from being claimed again right away.
	didWork, err = w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce during backoff = %v, %v; want false, nil", didWork, err)
	}
	if calls.Load() != 1 {
		t.Errorf("executor called %d times, want 1", calls.Load())
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockExecutor{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorker_RunProcessesQueuedJobs(t *testing.T) {
	store := openTestStore(t)
	q := action.NewJobQueue(store)
	for id := int64(1); id <= 3; id++ {
		if err := q.Enqueue(id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var executed atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(store, &mockExecutor{execFn: func(context.Context, int64) error {
		if executed.Add(1) == 3 {
			cancel()
		}
		return nil
	}}, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish the queued jobs")
	}
	if executed.Load() != 3 {
		t.Errorf("executed %d jobs, want 3", executed.Load())
	}
}
