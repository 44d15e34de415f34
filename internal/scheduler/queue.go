package scheduler

import (
	"errors"
	"time"
)

// ErrQueueFull is returned when the queue cannot take another job.
var ErrQueueFull = errors.New("evaluation queue is full")

// Job is one submission waiting to be evaluated.
type Job struct {
	RepositoryID string    `json:"repository_id"`
	TaskID       string    `json:"task_id"`
	Round        int       `json:"round"`
	RepoURL      string    `json:"repo_url"`
	CommitSHA    string    `json:"commit_sha"`
	PagesURL     string    `json:"pages_url,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Queue is a bounded FIFO of jobs between intake and the worker.
type Queue struct {
	jobs chan Job
}

// NewQueue creates a queue holding up to size jobs.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &Queue{jobs: make(chan Job, size)}
}

// Enqueue adds job without blocking.
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int { return len(q.jobs) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.jobs) }
