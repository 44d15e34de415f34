package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/evaluator"
	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/store"
)

// mockEvaluator returns fixed results, optionally panicking or blocking.
type mockEvaluator struct {
	mu       sync.Mutex
	calls    []evaluator.Submission
	panicOn  string
	block    chan struct{}
	started  chan string
	active   int32
	maxSeen  int32
	observer func(sub evaluator.Submission)
}

func (m *mockEvaluator) Evaluate(ctx context.Context, sub evaluator.Submission) []models.CheckResult {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, sub)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- sub.RepoURL
	}
	if m.observer != nil {
		m.observer(sub)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
		}
	}
	if sub.RepoURL == m.panicOn {
		panic("boom")
	}

	return []models.CheckResult{
		{Name: evaluator.CheckRepositoryValidation, Status: models.CheckPassed, Score: 1, Reason: "ok", EvaluatedAt: time.Now()},
		{Name: evaluator.CheckLicense, Status: models.CheckFailed, Score: 0, Reason: "no license", EvaluatedAt: time.Now()},
	}
}

func (m *mockEvaluator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// submit creates a sent task and accepts a submission for it.
func submit(t *testing.T, s *store.Store, id, repoURL string) Job {
	t.Helper()
	task := &models.Task{
		ID:         id,
		TemplateID: "sum-of-sales",
		Identity:   "alice@example.com",
		Round:      1,
		Nonce:      "nonce-" + id,
		Brief:      "brief",
		Checks:     []string{"check"},
		Status:     models.TaskStatusSent,
	}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	_, repo, err := s.AcceptSubmissionTx(store.Submission{
		TaskID: id, Round: 1, Nonce: task.Nonce, RepoURL: repoURL, CommitSHA: "abc123",
	})
	if err != nil {
		t.Fatalf("Failed to accept submission: %v", err)
	}
	return JobFor(repo)
}

func waitForStatus(t *testing.T, s *store.Store, id string, want models.TaskStatus) *models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := s.GetTask(id, 1)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if task != nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, _ := s.GetTask(id, 1)
	t.Fatalf("Expected task %s to reach %s, last status %v", id, want, task.Status)
	return nil
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(2)
	if q.Cap() != 2 {
		t.Errorf("Expected capacity 2, got %d", q.Cap())
	}
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(Job{TaskID: "t"}); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}
	if err := q.Enqueue(Job{TaskID: "t"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("Expected length 2, got %d", q.Len())
	}

	if NewQueue(0).Cap() != DefaultConfig().QueueSize {
		t.Error("Expected default capacity for non-positive size")
	}
}

func TestWorker_EvaluatesSubmission(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	ev := &mockEvaluator{}
	w := New(s, ev, q, audit.NewPDRWriter(s), nil)

	job := submit(t, s, "task-1", "https://github.com/alice/sales")
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	w.Start()
	defer w.Stop()

	waitForStatus(t, s, "task-1", models.TaskStatusCompleted)

	results, err := s.GetEvaluationsByRepository(job.RepositoryID)
	if err != nil {
		t.Fatalf("GetEvaluationsByRepository failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Name != evaluator.CheckRepositoryValidation {
		t.Errorf("Expected results in evaluation order, got %s first", results[0].Name)
	}

	entries, err := s.ListPDR("task-1")
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != audit.ActionEvaluate || entries[0].Outcome != audit.OutcomeSuccess {
		t.Errorf("Expected one successful evaluate record, got %+v", entries)
	}
}

func TestWorker_ObservesEvaluatingStatus(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)

	var seen models.TaskStatus
	ev := &mockEvaluator{observer: func(evaluator.Submission) {
		task, _ := s.GetTask("task-1", 1)
		if task != nil {
			seen = task.Status
		}
	}}
	w := New(s, ev, q, nil, nil)

	q.Enqueue(submit(t, s, "task-1", "https://github.com/alice/sales"))
	w.Start()
	defer w.Stop()

	waitForStatus(t, s, "task-1", models.TaskStatusCompleted)
	if seen != models.TaskStatusEvaluating {
		t.Errorf("Expected evaluating during evaluation, got %s", seen)
	}
}

func TestWorker_PanicFailsTaskAndContinues(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	ev := &mockEvaluator{panicOn: "https://github.com/alice/broken"}
	w := New(s, ev, q, nil, nil)

	bad := submit(t, s, "task-bad", "https://github.com/alice/broken")
	good := submit(t, s, "task-good", "https://github.com/alice/sales")
	q.Enqueue(bad)
	q.Enqueue(good)

	w.Start()
	defer w.Stop()

	failed := waitForStatus(t, s, "task-bad", models.TaskStatusFailed)
	if failed.ErrorMessage == "" {
		t.Error("Expected error message on failed task")
	}
	waitForStatus(t, s, "task-good", models.TaskStatusCompleted)

	results, err := s.GetEvaluationsByRepository(bad.RepositoryID)
	if err != nil {
		t.Fatalf("GetEvaluationsByRepository failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != evaluator.CheckSystemError || results[0].Status != models.CheckError {
		t.Errorf("Expected a single system_error result, got %+v", results)
	}

	deadline := time.Now().Add(5 * time.Second)
	stats := w.GetStats()
	for time.Now().Before(deadline) && stats["processed"] != 1 {
		time.Sleep(10 * time.Millisecond)
		stats = w.GetStats()
	}
	if stats["failed"] != 1 || stats["processed"] != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestWorker_ProcessesOneAtATime(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	ev := &mockEvaluator{}
	w := New(s, ev, q, nil, nil)

	ids := []string{"task-a", "task-b", "task-c", "task-d"}
	for _, id := range ids {
		q.Enqueue(submit(t, s, id, "https://github.com/alice/"+id))
	}

	w.Start()
	defer w.Stop()

	for _, id := range ids {
		waitForStatus(t, s, id, models.TaskStatusCompleted)
	}
	if ev.callCount() != len(ids) {
		t.Errorf("Expected %d evaluations, got %d", len(ids), ev.callCount())
	}
	if got := atomic.LoadInt32(&ev.maxSeen); got != 1 {
		t.Errorf("Expected at most 1 concurrent evaluation, got %d", got)
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	for i, call := range ev.calls {
		if call.RepoURL != "https://github.com/alice/"+ids[i] {
			t.Errorf("Expected FIFO order, call %d was %s", i, call.RepoURL)
		}
	}
}

func TestWorker_StopCancelsRunningEvaluation(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	ev := &mockEvaluator{block: make(chan struct{}), started: make(chan string, 1)}
	w := New(s, ev, q, nil, nil)

	q.Enqueue(submit(t, s, "task-1", "https://github.com/alice/sales"))
	w.Start()

	select {
	case <-ev.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Evaluation did not start")
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while an evaluation was running")
	}

	task, _ := s.GetTask("task-1", 1)
	if task.Status != models.TaskStatusReceived {
		t.Errorf("Expected interrupted task back to received, got %s", task.Status)
	}
	repo, _ := s.LatestRepository("task-1", 1)
	results, _ := s.GetEvaluationsByRepository(repo.ID)
	if len(results) != 0 {
		t.Errorf("Expected no stored results, got %d", len(results))
	}

	// The next process picks the submission up again.
	q2 := NewQueue(10)
	n, err := New(s, &mockEvaluator{}, q2, nil, nil).Recover()
	if err != nil || n != 1 {
		t.Errorf("Expected 1 job recovered, got %d (%v)", n, err)
	}
}

func TestWorker_Recover(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	w := New(s, &mockEvaluator{}, q, nil, nil)

	submit(t, s, "task-received", "https://github.com/alice/sales")
	submit(t, s, "task-interrupted", "https://github.com/alice/other")
	if err := s.UpdateTaskStatus("task-interrupted", 1, models.TaskStatusEvaluating, ""); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	// A received task without a repository has nothing to evaluate.
	orphan := &models.Task{ID: "task-orphan", Round: 1, Nonce: "n", Status: models.TaskStatusReceived}
	if err := s.CreateTask(orphan); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	n, err := w.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 || q.Len() != 1 {
		t.Errorf("Expected 1 job re-queued, got %d (queue %d)", n, q.Len())
	}

	task, _ := s.GetTask("task-interrupted", 1)
	if task.Status != models.TaskStatusFailed {
		t.Errorf("Expected interrupted task failed, got %s", task.Status)
	}

	job := <-q.jobs
	if job.TaskID != "task-received" || job.RepoURL != "https://github.com/alice/sales" {
		t.Errorf("Unexpected recovered job %+v", job)
	}
}

func TestWorker_MissingTaskFails(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10)
	ev := &mockEvaluator{}
	w := New(s, ev, q, nil, nil)

	q.Enqueue(Job{RepositoryID: "repo-x", TaskID: "ghost", Round: 1})
	job := submit(t, s, "task-1", "https://github.com/alice/sales")
	q.Enqueue(job)

	w.Start()
	defer w.Stop()

	waitForStatus(t, s, "task-1", models.TaskStatusCompleted)
	if ev.callCount() != 1 {
		t.Errorf("Expected the missing task to be skipped before evaluation, got %d calls", ev.callCount())
	}
}
