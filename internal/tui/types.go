package tui

import "time"

// TaskItem is a summary of a task for the list view
type TaskItem struct {
	ID       string
	Round    int
	Identity string
	Template string
	Status   string
}

// TaskDetail is the full task information
type TaskDetail struct {
	ID          string
	Round       int
	Identity    string
	Template    string
	Status      string
	Brief       string
	Checks      []string
	Attachments []string
	StatusCode  int
	Error       string
	CreatedAt   time.Time
	SentAt      *time.Time
	ReceivedAt  *time.Time
}

// CheckRow is one evaluation result
type CheckRow struct {
	Name     string
	Status   string
	Score    float64
	Reason   string
	Duration time.Duration
}

// Results is the latest submission and its check results
type Results struct {
	RepoURL   string
	CommitSHA string
	PagesURL  string
	Checks    []CheckRow
}

// HealthInfo is the daemon health summary
type HealthInfo struct {
	OK          bool
	DB          string
	Version     string
	QueueLength int
	Tasks       map[string]int
}
