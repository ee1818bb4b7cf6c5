package action

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/aiassist/internal/events"
	"github.com/kalambet/aiassist/internal/storage"
)

type execFunc func(ctx context.Context, run *Run) error

func (f execFunc) Execute(ctx context.Context, run *Run) error { return f(ctx, run) }

type fakeResolver struct {
	exec Executor
	err  error
}

func (r fakeResolver) Executor(context.Context, int64, string) (Executor, error) {
	return r.exec, r.err
}

// hookResolver runs before each resolution, standing in for whatever else
// touches the action between Execute loading it and starting it.
type hookResolver struct {
	exec   Executor
	before func()
}

func (r hookResolver) Executor(context.Context, int64, string) (Executor, error) {
	r.before()
	return r.exec, nil
}

// finishFailStore rejects the finished write.
type finishFailStore struct {
	*storage.Store
}

func (s finishFailStore) SetActionStatus(id int64, status storage.Status, text string, progress *int) error {
	if status == storage.StatusFinished {
		return errors.New("disk I/O error")
	}
	return s.Store.SetActionStatus(id, status, text, progress)
}

type failingQueue struct{}

func (failingQueue) Enqueue(int64) error                { return errors.New("queue down") }
func (failingQueue) RemovePending(int64) (bool, error) { return false, nil }

type fixture struct {
	store  *storage.Store
	ctrl   *Controller
	events *events.Recorder
}

func newFixture(t *testing.T, exec Executor) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec := &events.Recorder{}
	ctrl := NewController(store, NewJobQueue(store), fakeResolver{exec: exec}, rec)
	return &fixture{store: store, ctrl: ctrl, events: rec}
}

func (f *fixture) launch(t *testing.T) int64 {
	t.Helper()
	id, err := f.ctrl.Launch(context.Background(), 2, 7, "generate_definitions", map[string]any{"wordlist": []string{"cat"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	return id
}

func (f *fixture) status(t *testing.T, id int64) storage.Action {
	t.Helper()
	a, err := f.ctrl.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetStatus(%d): %v", id, err)
	}
	return a
}

func noop() Executor {
	return execFunc(func(context.Context, *Run) error { return nil })
}

func TestLaunchCreatesPendingAndQueues(t *testing.T) {
	f := newFixture(t, noop())
	id := f.launch(t)

	a := f.status(t, id)
	if a.Status != storage.StatusPending {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusPending)
	}
	if a.DataJSON != `{"wordlist":["cat"]}` {
		t.Errorf("DataJSON = %q", a.DataJSON)
	}

	job, err := f.store.ClaimNextJob([]string{storage.JobTypeExecuteAction})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("Launch did not queue a job")
	}
	if !strings.Contains(job.PayloadJSON, `"action_id"`) {
		t.Errorf("PayloadJSON = %q", job.PayloadJSON)
	}
}

func TestLaunchConflict(t *testing.T) {
	f := newFixture(t, noop())
	first := f.launch(t)

	_, err := f.ctrl.Launch(context.Background(), 2, 7, "generate_definitions", nil)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Launch error = %v, want *ConflictError", err)
	}
	if conflict.ExistingID != first {
		t.Errorf("ExistingID = %d, want %d", conflict.ExistingID, first)
	}
}

func TestLaunchConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, noop())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.ctrl.Launch(context.Background(), 1, 1, "generate_questions", nil)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range results {
		var c *ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &c):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("ok=%d conflicts=%d, want 1 and 1", ok, conflicts)
	}
}

func TestLaunchQueueFailureReleasesScope(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	ctrl := NewController(store, failingQueue{}, fakeResolver{exec: noop()}, nil)
	if _, err := ctrl.Launch(context.Background(), 1, 1, "generate_questions", nil); err == nil {
		t.Fatal("expected Launch to fail when the queue is down")
	}
	active, err := ctrl.GetActiveAction(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("GetActiveAction: %v", err)
	}
	if active != nil {
		t.Errorf("scope still has active action %d", active.ID)
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t, execFunc(func(ctx context.Context, run *Run) error {
		var params struct {
			Wordlist []string `json:"wordlist"`
		}
		if err := run.Params(&params); err != nil {
			return err
		}
		if len(params.Wordlist) != 1 || params.Wordlist[0] != "cat" {
			return errors.New("unexpected params")
		}
		return run.SetProgress(ctx, 50)
	}))
	id := f.launch(t)

	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	a := f.status(t, id)
	if a.Status != storage.StatusFinished {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusFinished)
	}
	if a.Progress != 100 {
		t.Errorf("Progress = %d, want 100", a.Progress)
	}
	if a.StatusText != TextFinished {
		t.Errorf("StatusText = %q, want %q", a.StatusText, TextFinished)
	}

	var statuses []string
	for _, ev := range f.events.Events() {
		statuses = append(statuses, ev.Status)
	}
	want := "pending,running,running,finished"
	if got := strings.Join(statuses, ","); got != want {
		t.Errorf("event statuses = %s, want %s", got, want)
	}
}

func TestExecuteFailureRecordsError(t *testing.T) {
	f := newFixture(t, execFunc(func(ctx context.Context, run *Run) error {
		if err := run.SetStatusText(ctx, "Processing word: cat"); err != nil {
			return err
		}
		return errors.New("storage unavailable")
	}))
	id := f.launch(t)

	err := f.ctrl.Execute(context.Background(), id)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute error = %v, want *ExecutionError", err)
	}
	if execErr.ActionID != id {
		t.Errorf("ActionID = %d, want %d", execErr.ActionID, id)
	}

	a := f.status(t, id)
	if a.Status != storage.StatusError {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusError)
	}
	if !strings.HasPrefix(a.StatusText, "Processing word: cat") || !strings.Contains(a.StatusText, "storage unavailable") {
		t.Errorf("StatusText = %q, want last message and cause", a.StatusText)
	}
}

func TestExecutePanicRecordsError(t *testing.T) {
	f := newFixture(t, execFunc(func(context.Context, *Run) error {
		panic("nil map")
	}))
	id := f.launch(t)

	if err := f.ctrl.Execute(context.Background(), id); err == nil {
		t.Fatal("expected error from panicking executor")
	}
	if a := f.status(t, id); a.Status != storage.StatusError {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusError)
	}
}

func TestExecuteUnresolvedExecutor(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	ctrl := NewController(store, NewJobQueue(store), fakeResolver{err: errors.New("no extension for module")}, nil)
	id, err := ctrl.Launch(context.Background(), 1, 1, "generate_definitions", nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := ctrl.Execute(context.Background(), id); err == nil {
		t.Fatal("expected error")
	}
	a, _ := ctrl.GetStatus(context.Background(), id)
	if a.Status != storage.StatusError {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusError)
	}
}

func TestExecuteSkipsNonPending(t *testing.T) {
	calls := 0
	f := newFixture(t, execFunc(func(context.Context, *Run) error {
		calls++
		return nil
	}))
	id := f.launch(t)

	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("executor ran %d times, want 1", calls)
	}
}

func TestExecuteDoesNotRestartCancelledAction(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	ran := false
	var (
		ctrl *Controller
		id   int64
	)
	resolver := hookResolver{
		exec: execFunc(func(context.Context, *Run) error {
			ran = true
			return nil
		}),
		before: func() {
			ok, err := ctrl.Cancel(context.Background(), id)
			if err != nil || !ok {
				t.Errorf("Cancel = %v, %v; want true, nil", ok, err)
			}
		},
	}
	ctrl = NewController(store, NewJobQueue(store), resolver, nil)
	id, err = ctrl.Launch(context.Background(), 1, 1, "generate_questions", nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if err := ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran {
		t.Error("executor ran for a cancelled action")
	}
	a, _ := ctrl.GetStatus(context.Background(), id)
	if a.Status != storage.StatusCancelled {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusCancelled)
	}
	if a.StatusText != TextCancelled {
		t.Errorf("StatusText = %q, want %q", a.StatusText, TextCancelled)
	}
}

func TestExecuteFinishWriteFailureRecordsError(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	ctrl := NewController(finishFailStore{store}, NewJobQueue(store), fakeResolver{exec: noop()}, nil)
	id, err := ctrl.Launch(context.Background(), 1, 1, "generate_questions", nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	err = ctrl.Execute(context.Background(), id)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute error = %v, want *ExecutionError", err)
	}
	a, _ := ctrl.GetStatus(context.Background(), id)
	if a.Status != storage.StatusError {
		t.Errorf("Status = %q, want %q", a.Status, storage.StatusError)
	}
	if !strings.Contains(a.StatusText, "disk I/O error") {
		t.Errorf("StatusText = %q, want the write failure", a.StatusText)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	f := newFixture(t, noop())
	if err := f.ctrl.Execute(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Execute(42) = %v, want ErrNotFound", err)
	}
}

func TestReportProgressClamps(t *testing.T) {
	f := newFixture(t, noop())
	id := f.launch(t)

	tests := []struct{ in, want int }{
		{150, 100},
		{-5, 0},
		{42, 42},
	}
	for _, tt := range tests {
		p := tt.in
		if err := f.ctrl.ReportProgress(context.Background(), id, &p, nil); err != nil {
			t.Fatalf("ReportProgress(%d): %v", tt.in, err)
		}
		if got := f.status(t, id).Progress; got != tt.want {
			t.Errorf("ReportProgress(%d) stored %d, want %d", tt.in, got, tt.want)
		}
	}

	text := "Processing word: cat"
	if err := f.ctrl.ReportProgress(context.Background(), id, nil, &text); err != nil {
		t.Fatalf("ReportProgress(text): %v", err)
	}
	a := f.status(t, id)
	if a.StatusText != text || a.Progress != 42 {
		t.Errorf("after text-only report: text=%q progress=%d", a.StatusText, a.Progress)
	}
}

func TestReportProgressUnknownAction(t *testing.T) {
	f := newFixture(t, noop())
	p := 10
	if err := f.ctrl.ReportProgress(context.Background(), 99, &p, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReportProgress(99) = %v, want ErrNotFound", err)
	}
}

func TestCancelPending(t *testing.T) {
	f := newFixture(t, noop())
	id := f.launch(t)

	ok, err := f.ctrl.Cancel(context.Background(), id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Fatal("Cancel = false, want true")
	}

	a := f.status(t, id)
	if a.Status != storage.StatusCancelled || a.StatusText != TextCancelled {
		t.Errorf("after cancel: status=%q text=%q", a.Status, a.StatusText)
	}

	job, err := f.store.ClaimNextJob([]string{storage.JobTypeExecuteAction})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("queued job should have been removed, got %+v", job)
	}

	ok, err = f.ctrl.Cancel(context.Background(), id)
	if err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if ok {
		t.Error("second Cancel = true, want false")
	}

	// A cancelled pending action is never executed.
	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute after cancel: %v", err)
	}
	if a := f.status(t, id); a.Status != storage.StatusCancelled {
		t.Errorf("Status = %q after Execute, want cancelled", a.Status)
	}
}

func TestCancelUnknownAction(t *testing.T) {
	f := newFixture(t, noop())
	if _, err := f.ctrl.Cancel(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel(404) = %v, want ErrNotFound", err)
	}
}

func TestCancelWhileRunningStopsAtCheckpoint(t *testing.T) {
	var f *fixture
	processed := 0
	f = newFixture(t, execFunc(func(ctx context.Context, run *Run) error {
		for i := 0; i < 5; i++ {
			if err := run.Checkpoint(ctx); err != nil {
				return err
			}
			processed++
			if i == 1 {
				if _, err := f.ctrl.Cancel(ctx, run.Action().ID); err != nil {
					return err
				}
			}
		}
		return nil
	}))
	id := f.launch(t)

	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed %d items, want 2", processed)
	}
	if a := f.status(t, id); a.Status != storage.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", a.Status)
	}
}

func TestGetStatusUnknown(t *testing.T) {
	f := newFixture(t, noop())
	if _, err := f.ctrl.GetStatus(context.Background(), 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStatus(5) = %v, want ErrNotFound", err)
	}
}

func TestGetActiveAction(t *testing.T) {
	f := newFixture(t, noop())

	got, err := f.ctrl.GetActiveAction(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("GetActiveAction: %v", err)
	}
	if got != nil {
		t.Fatalf("GetActiveAction = %+v, want nil", got)
	}

	id := f.launch(t)
	got, err = f.ctrl.GetActiveAction(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("GetActiveAction: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("GetActiveAction = %+v, want action %d", got, id)
	}

	if err := f.ctrl.Execute(context.Background(), id); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err = f.ctrl.GetActiveAction(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("GetActiveAction: %v", err)
	}
	if got != nil {
		t.Errorf("finished action still active: %+v", got)
	}
}

func TestRunNow(t *testing.T) {
	f := newFixture(t, noop())

	a, err := f.ctrl.RunNow(context.Background(), 1, 3, "generate_questions", map[string]any{"qcontext": "rivers"})
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if a.Status != storage.StatusFinished {
		t.Errorf("Status = %q, want finished", a.Status)
	}

	job, err := f.store.ClaimNextJob([]string{storage.JobTypeExecuteAction})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Error("RunNow should not queue a job")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Fields:   map[string]string{"wordlist": "required", "voice": "unknown voice"},
		Problems: []string{"line 2: duplicate word"},
	}
	want := "invalid input: voice: unknown voice; wordlist: required; line 2: duplicate word"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
