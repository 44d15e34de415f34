// Package models defines the core domain types for taskforge.
package models

import "time"

// TaskStatus represents the lifecycle state of a delivered task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusSent       TaskStatus = "sent"
	TaskStatusReceived   TaskStatus = "received"
	TaskStatusEvaluating TaskStatus = "evaluating"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// CheckStatus is the outcome of a single check.
type CheckStatus string

const (
	CheckPassed CheckStatus = "passed"
	CheckFailed CheckStatus = "failed"
	CheckError  CheckStatus = "error"
)

// Attachment is a named file handed to the student alongside the brief.
// Seeded attachments carry their payload inline as a data: URL.
type Attachment struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	URL  string `json:"url" yaml:"url" toml:"url"`
}

// Task is a materialized task instance.
type Task struct {
	ID            string       `json:"id"`
	TemplateID    string       `json:"template_id"`
	StudentID     string       `json:"student_id,omitempty"`
	Identity      string       `json:"identity,omitempty"`
	Round         int          `json:"round"`
	Seed          string       `json:"-"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	Attachments   []Attachment `json:"attachments"`
	EvaluationURL string       `json:"evaluation_url,omitempty"`
	Status        TaskStatus   `json:"status"`
	StatusCode    int          `json:"status_code,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	ReceivedAt    *time.Time   `json:"received_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Student is a registered participant with a delivery endpoint.
type Student struct {
	ID             string    `json:"id"`
	Identity       string    `json:"identity"`
	Endpoint       string    `json:"endpoint"`
	Secret         string    `json:"-"`
	GitHubUsername string    `json:"github_username,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository is a submission: the repo and commit a student hands in for a task.
type Repository struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Round       int       `json:"round"`
	RepoURL     string    `json:"repo_url"`
	CommitSHA   string    `json:"commit_sha"`
	PagesURL    string    `json:"pages_url,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CheckResult is one independently scored grading step.
type CheckResult struct {
	ID           string         `json:"id,omitempty"`
	RepositoryID string         `json:"repository_id,omitempty"`
	Name         string         `json:"check_name"`
	Status       CheckStatus    `json:"status"`
	Score        float64        `json:"score"`
	Reason       string         `json:"reason"`
	Logs         map[string]any `json:"logs"`
	EvaluatedAt  time.Time      `json:"evaluated_at"`
	Duration     time.Duration  `json:"duration_ns"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
