// Package controlplane provides the HTTP API and service layer for taskforge.
package controlplane

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/connectors/github"
	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/ratelimit"
	"github.com/fentz26/taskforge/internal/scheduler"
	"github.com/fentz26/taskforge/internal/store"
	"github.com/fentz26/taskforge/internal/tasks"
)

// minSecretLength is the shortest secret accepted from an unregistered identity.
const minSecretLength = 8

// Evaluation status values reported by EvaluationStatus.
const (
	StatusNoSubmission = "no_submission"
	StatusQueued       = "queued"
	StatusEvaluating   = "evaluating"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// Service provides the control plane business logic.
type Service struct {
	store     *store.Store
	pdr       *audit.PDRWriter
	generator *tasks.Generator
	queue     *scheduler.Queue
	limiter   *ratelimit.Tracker
	repoHost  connectors.RepoHost
}

// Option configures optional Service capabilities.
type Option func(*Service)

// WithRepoHost enables repository validation.
func WithRepoHost(h connectors.RepoHost) Option {
	return func(s *Service) { s.repoHost = h }
}

// WithRateLimiter bounds task requests per identity.
func WithRateLimiter(t *ratelimit.Tracker) Option {
	return func(s *Service) { s.limiter = t }
}

// NewService creates a new control plane service.
func NewService(st *store.Store, pdr *audit.PDRWriter, gen *tasks.Generator, q *scheduler.Queue, opts ...Option) *Service {
	s := &Service{
		store:     st,
		pdr:       pdr,
		generator: gen,
		queue:     q,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Task Requests ---

// TaskRequest is a student's request for a round-1 task.
type TaskRequest struct {
	Identity       string `json:"identity"`
	Email          string `json:"email,omitempty"`
	Secret         string `json:"secret"`
	Endpoint       string `json:"endpoint,omitempty"`
	GitHubUsername string `json:"github_username,omitempty"`
}

func (r TaskRequest) identity() string {
	if r.Identity != "" {
		return r.Identity
	}
	return r.Email
}

// RequestTask authenticates the student, generates their task for the
// current hour and records it as sent. A task already sent or submitted
// this hour is returned unchanged.
func (s *Service) RequestTask(req TaskRequest) (*models.Task, error) {
	identity := strings.TrimSpace(req.identity())
	if identity == "" || req.Secret == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrValidation)
	}

	ok, err := s.validateSecret(identity, req.Secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.pdr.Log(audit.ActionGenerate, map[string]string{"identity": identity}, audit.OutcomeRejected, "", "invalid secret")
		return nil, ErrUnauthorized
	}

	if s.limiter != nil && !s.limiter.Allow(identity) {
		return nil, ErrRateLimited
	}

	student, err := s.store.CreateStudent(identity, req.Endpoint, req.Secret, req.GitHubUsername)
	if err != nil {
		return nil, err
	}

	task, err := s.generator.GenerateTask(identity, tasks.GenerateOptions{Round: 1})
	if err != nil {
		return nil, fmt.Errorf("generate task: %w", err)
	}
	task.StudentID = student.ID

	err = s.store.CreateTask(task)
	if errors.Is(err, store.ErrTaskIssued) {
		// Sent or submitted this hour; hand back the stored instance as is.
		return s.store.GetTask(task.ID, task.Round)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTaskStatus(task.ID, task.Round, models.TaskStatusSent, ""); err != nil {
		return nil, err
	}
	task.Status = models.TaskStatusSent

	s.pdr.Log(audit.ActionGenerate, map[string]interface{}{"identity": identity, "round": task.Round},
		audit.OutcomeSuccess, task.ID, task.TemplateID)
	return task, nil
}

// validateSecret compares secret with the stored one in constant time. An
// identity without a stored secret is accepted with any secret of at least
// minSecretLength characters, which RequestTask then registers.
func (s *Service) validateSecret(identity, secret string) (bool, error) {
	student, err := s.store.GetStudentByIdentity(identity)
	if err != nil {
		return false, err
	}
	if student != nil && student.Secret != "" {
		return subtle.ConstantTimeCompare([]byte(student.Secret), []byte(secret)) == 1, nil
	}
	return len(secret) >= minSecretLength, nil
}

// --- Submission Intake ---

// SubmissionRequest is the body a student posts when handing in a repository.
type SubmissionRequest struct {
	Identity  string `json:"identity"`
	Email     string `json:"email,omitempty"`
	Task      string `json:"task"`
	Round     *int   `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url,omitempty"`
}

// SubmissionReceipt acknowledges an accepted submission.
type SubmissionReceipt struct {
	Status       string `json:"status"`
	RepositoryID string `json:"repository_id"`
	Message      string `json:"message"`
}

func (r SubmissionRequest) missingField() string {
	switch {
	case r.Identity == "" && r.Email == "":
		return "identity"
	case r.Task == "":
		return "task"
	case r.Round == nil:
		return "round"
	case r.Nonce == "":
		return "nonce"
	case r.RepoURL == "":
		return "repo_url"
	case r.CommitSHA == "":
		return "commit_sha"
	}
	return ""
}

// SubmitEvaluation validates a submission against its task, records it and
// queues it for evaluation. A rejected submission writes nothing.
func (s *Service) SubmitEvaluation(req SubmissionRequest) (*SubmissionReceipt, error) {
	if field := req.missingField(); field != "" {
		return nil, fmt.Errorf("%w: missing required field: %s", ErrValidation, field)
	}

	_, repo, err := s.store.AcceptSubmissionTx(store.Submission{
		TaskID:    req.Task,
		Round:     *req.Round,
		Nonce:     req.Nonce,
		RepoURL:   req.RepoURL,
		CommitSHA: req.CommitSHA,
		PagesURL:  req.PagesURL,
	})
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			reason = "invalid task ID"
		case errors.Is(err, store.ErrNonceMismatch):
			reason = "invalid nonce"
		case errors.Is(err, store.ErrTaskNotAcceptable):
			reason = "task not in correct state"
		default:
			return nil, err
		}
		s.pdr.Log(audit.ActionReject, req, audit.OutcomeRejected, req.Task, reason)
		return nil, fmt.Errorf("%w: %s", ErrValidation, reason)
	}

	// The task is already received; a full queue leaves it for Recover.
	if err := s.queue.Enqueue(scheduler.JobFor(repo)); err != nil {
		s.pdr.Log(audit.ActionAccept, req, audit.OutcomeFailed, req.Task, err.Error())
		return nil, err
	}

	s.pdr.Log(audit.ActionAccept, req, audit.OutcomeSuccess, req.Task, repo.ID)
	return &SubmissionReceipt{
		Status:       string(models.TaskStatusReceived),
		RepositoryID: repo.ID,
		Message:      "Repository submission received and queued for evaluation",
	}, nil
}

// --- Evaluation Queries ---

// CheckSummary is the short form of a CheckResult.
type CheckSummary struct {
	Name   string             `json:"check_name"`
	Status models.CheckStatus `json:"status"`
	Score  float64            `json:"score"`
	Reason string             `json:"reason"`
}

// EvaluationStatus summarizes the latest submission for a task.
type EvaluationStatus struct {
	TaskID          string         `json:"task_id"`
	Round           int            `json:"round"`
	Status          string         `json:"status"`
	TotalChecks     int            `json:"total_checks"`
	CompletedChecks int            `json:"completed_checks"`
	Evaluations     []CheckSummary `json:"evaluations"`
}

// EvaluationResults are the full results for the latest submission.
type EvaluationResults struct {
	TaskID    string               `json:"task_id"`
	Round     int                  `json:"round"`
	RepoURL   string               `json:"repository_url"`
	CommitSHA string               `json:"commit_sha"`
	PagesURL  string               `json:"pages_url,omitempty"`
	Results   []models.CheckResult `json:"results"`
}

// latest returns the task and its most recent submission. Round 0 selects
// the highest round.
func (s *Service) latest(taskID string, round int) (*models.Task, *models.Repository, error) {
	task, err := s.store.GetTask(taskID, round)
	if err != nil {
		return nil, nil, err
	}
	if task == nil {
		return nil, nil, ErrTaskNotFound
	}
	repo, err := s.store.LatestRepository(task.ID, task.Round)
	if err != nil {
		return nil, nil, err
	}
	return task, repo, nil
}

// EvaluationStatus reports where the task's latest submission is in the
// evaluation pipeline.
func (s *Service) EvaluationStatus(taskID string, round int) (*EvaluationStatus, error) {
	task, repo, err := s.latest(taskID, round)
	if err != nil {
		return nil, err
	}

	out := &EvaluationStatus{TaskID: task.ID, Round: task.Round, Evaluations: []CheckSummary{}}
	if repo == nil {
		out.Status = StatusNoSubmission
		return out, nil
	}

	results, err := s.store.GetEvaluationsByRepository(repo.ID)
	if err != nil {
		return nil, err
	}

	switch {
	case task.Status == models.TaskStatusEvaluating:
		out.Status = StatusEvaluating
	case task.Status == models.TaskStatusFailed:
		out.Status = StatusFailed
	case len(results) == 0 || task.Status == models.TaskStatusReceived:
		out.Status = StatusQueued
	default:
		out.Status = StatusCompleted
	}

	out.TotalChecks = len(results)
	out.CompletedChecks = lo.CountBy(results, func(r models.CheckResult) bool {
		return r.Status == models.CheckPassed || r.Status == models.CheckFailed
	})
	out.Evaluations = lo.Map(results, func(r models.CheckResult, _ int) CheckSummary {
		return CheckSummary{Name: r.Name, Status: r.Status, Score: r.Score, Reason: r.Reason}
	})
	return out, nil
}

// EvaluationResults returns every stored result for the latest submission.
func (s *Service) EvaluationResults(taskID string, round int) (*EvaluationResults, error) {
	task, repo, err := s.latest(taskID, round)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: no repositories submitted", ErrNotFound)
	}

	results, err := s.store.GetEvaluationsByRepository(repo.ID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.CheckResult{}
	}

	return &EvaluationResults{
		TaskID:    task.ID,
		Round:     task.Round,
		RepoURL:   repo.RepoURL,
		CommitSHA: repo.CommitSHA,
		PagesURL:  repo.PagesURL,
		Results:   results,
	}, nil
}

// --- Repository Validation ---

// ValidateRepo asks the repository host about repoURL.
func (s *Service) ValidateRepo(ctx context.Context, repoURL string) (*connectors.Validation, error) {
	if repoURL == "" {
		return nil, fmt.Errorf("%w: missing repo_url", ErrValidation)
	}
	if !github.IsValidGitHubURL(repoURL) {
		return nil, fmt.Errorf("%w: invalid GitHub URL", ErrValidation)
	}
	if s.repoHost == nil {
		return nil, fmt.Errorf("%w: GitHub integration not available", ErrUnavailable)
	}
	return s.repoHost.ValidateRepository(ctx, repoURL)
}

// --- Listing ---

// ListTasks returns tasks, optionally filtered by status.
func (s *Service) ListTasks(status string) ([]models.Task, error) {
	return s.store.ListTasks(status)
}

// GetTask returns a task by id. Round 0 selects the highest round.
func (s *Service) GetTask(id string, round int) (*models.Task, error) {
	return s.store.GetTask(id, round)
}

// ListTemplates returns the registered template ids in selection order.
func (s *Service) ListTemplates() []string {
	return s.generator.ListTemplates()
}

// --- Health ---

// HealthResponse reports daemon health.
type HealthResponse struct {
	OK          bool                      `json:"ok"`
	DB          string                    `json:"db"`
	Version     string                    `json:"version"`
	Time        string                    `json:"time"`
	QueueLength int                       `json:"queue_length"`
	Tasks       map[models.TaskStatus]int `json:"tasks,omitempty"`
}

// Health pings the database and reports queue depth.
func (s *Service) Health(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		OK:          true,
		DB:          "ok",
		Version:     Version,
		Time:        time.Now().UTC().Format(time.RFC3339),
		QueueLength: s.queue.Len(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = "error: " + err.Error()
		return resp
	}

	if counts, err := s.store.CountTasksByStatus(); err == nil {
		resp.Tasks = counts
	}
	return resp
}
