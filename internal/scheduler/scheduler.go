package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/evaluator"
	"github.com/fentz26/taskforge/internal/models"
)

// Store is the persistence the worker needs. *store.Store satisfies it.
type Store interface {
	UpdateTaskStatus(id string, round int, status models.TaskStatus, errMsg string) error
	AddEvaluation(repositoryID string, result models.CheckResult) (*models.CheckResult, error)
	ListTasks(status string) ([]models.Task, error)
	LatestRepository(taskID string, round int) (*models.Repository, error)
}

// Evaluator grades one submission. *evaluator.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, sub evaluator.Submission) []models.CheckResult
}

// Worker drains the queue one job at a time.
type Worker struct {
	store  Store
	eval   Evaluator
	queue  *Queue
	pdr    *audit.PDRWriter
	config *Config

	mu        sync.Mutex
	current   string
	processed int
	failed    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a worker for queue.
func New(s Store, ev Evaluator, q *Queue, pdr *audit.PDRWriter, cfg *Config) *Worker {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		store:  s,
		eval:   ev,
		queue:  q,
		pdr:    pdr,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the worker loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
	log.Println("Evaluation worker started")
}

// Stop cancels the running evaluation, if any, and waits for the loop to
// exit. Jobs still queued are left for Recover on the next start.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
	log.Println("Evaluation worker stopped")
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.queue.jobs:
			w.process(job)
		}
	}
}

// process evaluates job. Nothing that goes wrong here stops the loop.
func (w *Worker) process(job Job) {
	w.mu.Lock()
	w.current = job.TaskID
	w.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			w.fail(job, fmt.Errorf("panic: %v", r))
		}
		w.mu.Lock()
		w.current = ""
		w.mu.Unlock()
	}()

	if err := w.evaluate(job); err != nil {
		w.fail(job, err)
	}
}

func (w *Worker) evaluate(job Job) error {
	log.Printf("Running evaluation for task %s, repository %s", job.TaskID, job.RepositoryID)

	if err := w.store.UpdateTaskStatus(job.TaskID, job.Round, models.TaskStatusEvaluating, ""); err != nil {
		return fmt.Errorf("mark evaluating: %w", err)
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.config.JobTimeout)
	defer cancel()

	start := time.Now()
	results := w.eval.Evaluate(ctx, evaluator.Submission{
		RepoURL:   job.RepoURL,
		CommitSHA: job.CommitSHA,
		PagesURL:  job.PagesURL,
	})

	// Stopped mid-run: results are partial, so keep none and leave the
	// submission received for Recover to queue again.
	if w.ctx.Err() != nil {
		log.Printf("Evaluation for task %s interrupted by shutdown, returning it to received", job.TaskID)
		if err := w.store.UpdateTaskStatus(job.TaskID, job.Round, models.TaskStatusReceived, ""); err != nil {
			log.Printf("Error returning task %s to received: %v", job.TaskID, err)
		}
		w.pdr.Log(audit.ActionEvaluate, job, audit.OutcomeFailed, job.TaskID, "interrupted by shutdown")
		return nil
	}

	for _, r := range results {
		if _, err := w.store.AddEvaluation(job.RepositoryID, r); err != nil {
			return fmt.Errorf("store result %s: %w", r.Name, err)
		}
	}

	if err := w.store.UpdateTaskStatus(job.TaskID, job.Round, models.TaskStatusCompleted, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	w.pdr.Log(audit.ActionEvaluate, job, audit.OutcomeSuccess, job.TaskID,
		fmt.Sprintf("%d checks in %s", len(results), time.Since(start).Round(time.Millisecond)))
	log.Printf("Completed evaluation for task %s with %d checks", job.TaskID, len(results))
	return nil
}

// fail records a synthetic system_error result and marks the task failed.
func (w *Worker) fail(job Job, cause error) {
	log.Printf("Failed to run evaluation for task %s: %v", job.TaskID, cause)

	w.mu.Lock()
	w.failed++
	w.mu.Unlock()

	if _, err := w.store.AddEvaluation(job.RepositoryID, evaluator.SystemError(cause)); err != nil {
		log.Printf("Error storing system error for task %s: %v", job.TaskID, err)
	}
	if err := w.store.UpdateTaskStatus(job.TaskID, job.Round, models.TaskStatusFailed, cause.Error()); err != nil {
		log.Printf("Error marking task %s failed: %v", job.TaskID, err)
	}
	w.pdr.Log(audit.ActionEvaluate, job, audit.OutcomeFailed, job.TaskID, cause.Error())
}

// Recover re-enqueues submissions left behind by a previous process. Tasks
// still received are queued again; tasks caught mid-evaluation are marked
// failed, since their partial results cannot be told apart from a rerun.
func (w *Worker) Recover() (int, error) {
	received, err := w.store.ListTasks(string(models.TaskStatusReceived))
	if err != nil {
		return 0, fmt.Errorf("list received tasks: %w", err)
	}

	queued := 0
	for _, task := range received {
		repo, err := w.store.LatestRepository(task.ID, task.Round)
		if err != nil {
			return queued, fmt.Errorf("latest repository for %s: %w", task.ID, err)
		}
		if repo == nil {
			continue
		}
		if err := w.queue.Enqueue(JobFor(repo)); err != nil {
			return queued, err
		}
		queued++
	}

	interrupted, err := w.store.ListTasks(string(models.TaskStatusEvaluating))
	if err != nil {
		return queued, fmt.Errorf("list evaluating tasks: %w", err)
	}
	for _, task := range interrupted {
		if err := w.store.UpdateTaskStatus(task.ID, task.Round, models.TaskStatusFailed, "evaluation interrupted by restart"); err != nil {
			log.Printf("Error marking task %s failed: %v", task.ID, err)
		}
	}

	if queued > 0 || len(interrupted) > 0 {
		log.Printf("Recovered %d queued submissions, %d interrupted evaluations", queued, len(interrupted))
	}
	return queued, nil
}

// JobFor builds the queue job for a stored submission.
func JobFor(repo *models.Repository) Job {
	return Job{
		RepositoryID: repo.ID,
		TaskID:       repo.TaskID,
		Round:        repo.Round,
		RepoURL:      repo.RepoURL,
		CommitSHA:    repo.CommitSHA,
		PagesURL:     repo.PagesURL,
		SubmittedAt:  repo.SubmittedAt,
	}
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	return map[string]interface{}{
		"queue_length":   w.queue.Len(),
		"queue_capacity": w.queue.Cap(),
		"current_task":   w.current,
		"processed":      w.processed,
		"failed":         w.failed,
	}
}
