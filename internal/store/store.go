// Package store provides SQLite-backed persistence for taskforge.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the taskforge SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL lets the HTTP handlers read while the worker writes results.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL UNIQUE,
		endpoint TEXT NOT NULL DEFAULT '',
		secret TEXT NOT NULL,
		github_username TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT NOT NULL,
		round INTEGER NOT NULL,
		template_id TEXT NOT NULL,
		student_id TEXT,
		identity TEXT NOT NULL,
		seed TEXT NOT NULL,
		nonce TEXT NOT NULL UNIQUE,
		brief TEXT NOT NULL,
		checks TEXT NOT NULL,
		attachments TEXT NOT NULL,
		evaluation_url TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		status_code INTEGER,
		error_message TEXT,
		sent_at DATETIME,
		received_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (id, round),
		FOREIGN KEY (student_id) REFERENCES students(id)
	);

	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		repo_url TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		pages_url TEXT,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (task_id, round) REFERENCES tasks(id, round)
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		check_name TEXT NOT NULL,
		status TEXT NOT NULL,
		score REAL NOT NULL,
		reason TEXT,
		logs TEXT,
		evaluated_at DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (repository_id) REFERENCES repositories(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_student_id ON tasks(student_id);
	CREATE INDEX IF NOT EXISTS idx_repositories_task ON repositories(task_id, round);
	CREATE INDEX IF NOT EXISTS idx_evaluations_repository_id ON evaluations(repository_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Student Operations ---

// CreateStudent registers identity, or refreshes the endpoint, secret and
// username of an existing registration. The stored row is returned.
func (s *Store) CreateStudent(identity, endpoint, secret, githubUsername string) (*models.Student, error) {
	_, err := s.db.Exec(
		`INSERT INTO students (id, identity, endpoint, secret, github_username, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET
			endpoint = CASE WHEN excluded.endpoint != '' THEN excluded.endpoint ELSE students.endpoint END,
			secret = excluded.secret,
			github_username = COALESCE(NULLIF(excluded.github_username, ''), students.github_username)`,
		uuid.New().String(), identity, endpoint, secret, githubUsername, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert student: %w", err)
	}
	return s.GetStudentByIdentity(identity)
}

// GetStudentByIdentity returns the student registered under identity, or
// nil if there is none.
func (s *Store) GetStudentByIdentity(identity string) (*models.Student, error) {
	st := &models.Student{}
	var username sql.NullString
	err := s.db.QueryRow(
		`SELECT id, identity, endpoint, secret, github_username, created_at FROM students WHERE identity = ?`,
		identity,
	).Scan(&st.ID, &st.Identity, &st.Endpoint, &st.Secret, &username, &st.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	st.GitHubUsername = username.String
	return st, nil
}

// ListStudents returns every registered student, oldest first.
func (s *Store) ListStudents() ([]models.Student, error) {
	rows, err := s.db.Query(
		`SELECT id, identity, endpoint, secret, github_username, created_at FROM students ORDER BY created_at, rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var st models.Student
		var username sql.NullString
		if err := rows.Scan(&st.ID, &st.Identity, &st.Endpoint, &st.Secret, &username, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		st.GitHubUsername = username.String
		students = append(students, st)
	}
	return students, rows.Err()
}

// --- Task Operations ---

const taskColumns = `id, round, template_id, student_id, identity, seed, nonce, brief, checks, attachments,
	evaluation_url, status, status_code, error_message, sent_at, received_at, created_at, updated_at`

// CreateTask records task. Re-issuing the same task id and round (the same
// identity in the same hour) replaces the stored instance, including its
// nonce, only while it is pending or failed. An instance that has been sent
// or submitted is left untouched and ErrTaskIssued is returned.
func (s *Store) CreateTask(task *models.Task) error {
	checksJSON, err := json.Marshal(task.Checks)
	if err != nil {
		return fmt.Errorf("encode checks: %w", err)
	}
	attachmentsJSON, err := json.Marshal(task.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	res, err := s.db.Exec(
		`INSERT INTO tasks (id, round, template_id, student_id, identity, seed, nonce, brief, checks, attachments,
			evaluation_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id, round) DO UPDATE SET
			student_id = excluded.student_id,
			nonce = excluded.nonce,
			brief = excluded.brief,
			checks = excluded.checks,
			attachments = excluded.attachments,
			evaluation_url = excluded.evaluation_url,
			status = excluded.status,
			status_code = NULL,
			error_message = NULL,
			sent_at = NULL,
			received_at = NULL,
			updated_at = excluded.updated_at
		 WHERE tasks.status IN (?, ?)`,
		task.ID, task.Round, task.TemplateID, nullString(task.StudentID), task.Identity, task.Seed, task.Nonce,
		task.Brief, string(checksJSON), string(attachmentsJSON), task.EvaluationURL, task.Status,
		task.CreatedAt, task.UpdatedAt,
		models.TaskStatusPending, models.TaskStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskIssued
	}
	return nil
}

// GetTask retrieves a task by id and round. Round 0 selects the highest
// round recorded for the id. A missing task returns nil.
func (s *Store) GetTask(id string, round int) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	args := []interface{}{id}
	if round > 0 {
		query += ` AND round = ?`
		args = append(args, round)
	}
	query += ` ORDER BY round DESC LIMIT 1`

	task, err := scanTask(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks, optionally filtered by status.
func (s *Store) ListTasks(status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []interface{}

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	return s.queryTasks(query, args...)
}

// ListTasksByStudent returns the tasks issued to a student. Round 0 returns
// every round.
func (s *Store) ListTasksByStudent(studentID string, round int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE student_id = ?`
	args := []interface{}{studentID}
	if round > 0 {
		query += ` AND round = ?`
		args = append(args, round)
	}
	query += ` ORDER BY created_at DESC`

	return s.queryTasks(query, args...)
}

func (s *Store) queryTasks(query string, args ...interface{}) ([]models.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		task                    models.Task
		studentID, evalURL      sql.NullString
		errMsg                  sql.NullString
		statusCode              sql.NullInt64
		sentAt, receivedAt      sql.NullTime
		checksJSON, attachments string
	)
	err := row.Scan(&task.ID, &task.Round, &task.TemplateID, &studentID, &task.Identity, &task.Seed, &task.Nonce,
		&task.Brief, &checksJSON, &attachments, &evalURL, &task.Status, &statusCode, &errMsg,
		&sentAt, &receivedAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.StudentID = studentID.String
	task.EvaluationURL = evalURL.String
	task.ErrorMessage = errMsg.String
	task.StatusCode = int(statusCode.Int64)
	if sentAt.Valid {
		task.SentAt = &sentAt.Time
	}
	if receivedAt.Valid {
		task.ReceivedAt = &receivedAt.Time
	}
	if err := json.Unmarshal([]byte(checksJSON), &task.Checks); err != nil {
		return nil, fmt.Errorf("decode checks: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &task.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &task, nil
}

// UpdateTaskStatus moves a task to status. errMsg replaces the stored error
// message; pass "" to clear it. Entering sent or received stamps the
// matching timestamp.
func (s *Store) UpdateTaskStatus(id string, round int, status models.TaskStatus, errMsg string) error {
	now := time.Now().UTC()
	query := `UPDATE tasks SET status = ?, error_message = ?, updated_at = ?`
	args := []interface{}{status, nullString(errMsg), now}
	switch status {
	case models.TaskStatusSent:
		query += `, sent_at = ?`
		args = append(args, now)
	case models.TaskStatusReceived:
		query += `, received_at = ?`
		args = append(args, now)
	}
	query += ` WHERE id = ? AND round = ?`
	args = append(args, id, round)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// SetDelivery records the outcome of delivering a task to the student's
// endpoint. HTTP 200 marks the task sent; anything else marks it failed.
func (s *Store) SetDelivery(id string, round int, statusCode int, deliveryErr string) error {
	now := time.Now().UTC()
	var err error
	if statusCode == 200 {
		_, err = s.db.Exec(
			`UPDATE tasks SET status = ?, status_code = ?, error_message = NULL, sent_at = ?, updated_at = ? WHERE id = ? AND round = ?`,
			models.TaskStatusSent, statusCode, now, now, id, round,
		)
	} else {
		_, err = s.db.Exec(
			`UPDATE tasks SET status = ?, status_code = ?, error_message = ?, updated_at = ? WHERE id = ? AND round = ?`,
			models.TaskStatusFailed, nullInt(statusCode), nullString(deliveryErr), now, id, round,
		)
	}
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// CountTasksByStatus returns the number of tasks in each status.
func (s *Store) CountTasksByStatus() (map[models.TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status models.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Submission Operations ---

// ErrTaskNotFound indicates no task exists for the id and round.
var ErrTaskNotFound = errors.New("task not found")

// ErrNonceMismatch indicates the submitted nonce is not the task's nonce.
var ErrNonceMismatch = errors.New("nonce does not match task")

// ErrTaskNotAcceptable indicates the task is not awaiting a submission.
var ErrTaskNotAcceptable = errors.New("task not in correct state")

// ErrTaskIssued indicates the task instance has already been sent or
// submitted and cannot be replaced.
var ErrTaskIssued = errors.New("task already issued")

// Submission is the data a student posts for a task.
type Submission struct {
	TaskID    string
	Round     int
	Nonce     string
	RepoURL   string
	CommitSHA string
	PagesURL  string
}

// AcceptSubmissionTx verifies the task exists, the nonce matches and the
// task is sent, then marks it received and records the
// repository in one transaction. Checks run in that order; on any failure
// nothing is written.
func (s *Store) AcceptSubmissionTx(sub Submission) (*models.Task, *models.Repository, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := scanTask(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND round = ?`, sub.TaskID, sub.Round,
	))
	if err == sql.ErrNoRows {
		return nil, nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query task: %w", err)
	}

	if task.Nonce != sub.Nonce {
		return nil, nil, ErrNonceMismatch
	}
	if task.Status != models.TaskStatusSent {
		return nil, nil, ErrTaskNotAcceptable
	}

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE tasks SET status = ?, received_at = ?, updated_at = ? WHERE id = ? AND round = ? AND nonce = ? AND status = ?`,
		models.TaskStatusReceived, now, now, sub.TaskID, sub.Round, sub.Nonce, models.TaskStatusSent,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update task status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, nil, fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		// Accepted or re-issued between our read and update.
		return nil, nil, ErrTaskNotAcceptable
	}

	repo := &models.Repository{
		ID:          uuid.New().String(),
		TaskID:      sub.TaskID,
		Round:       sub.Round,
		RepoURL:     sub.RepoURL,
		CommitSHA:   sub.CommitSHA,
		PagesURL:    sub.PagesURL,
		SubmittedAt: now,
	}
	if err := insertRepository(tx, repo); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.Status = models.TaskStatusReceived
	task.ReceivedAt = &now
	task.UpdatedAt = now
	return task, repo, nil
}

// CreateRepository records a repository submission without touching the
// task's status.
func (s *Store) CreateRepository(taskID string, round int, repoURL, commitSHA, pagesURL string) (*models.Repository, error) {
	repo := &models.Repository{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Round:       round,
		RepoURL:     repoURL,
		CommitSHA:   commitSHA,
		PagesURL:    pagesURL,
		SubmittedAt: time.Now().UTC(),
	}
	if err := insertRepository(s.db, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insertRepository(db execer, repo *models.Repository) error {
	_, err := db.Exec(
		`INSERT INTO repositories (id, task_id, round, repo_url, commit_sha, pages_url, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.TaskID, repo.Round, repo.RepoURL, repo.CommitSHA, nullString(repo.PagesURL), repo.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert repository: %w", err)
	}
	return nil
}

// LatestRepository returns the most recent submission for a task, or nil.
// Round 0 considers every round.
func (s *Store) LatestRepository(taskID string, round int) (*models.Repository, error) {
	query := `SELECT id, task_id, round, repo_url, commit_sha, pages_url, submitted_at FROM repositories WHERE task_id = ?`
	args := []interface{}{taskID}
	if round > 0 {
		query += ` AND round = ?`
		args = append(args, round)
	}
	query += ` ORDER BY rowid DESC LIMIT 1`

	repo := &models.Repository{}
	var pagesURL sql.NullString
	err := s.db.QueryRow(query, args...).Scan(
		&repo.ID, &repo.TaskID, &repo.Round, &repo.RepoURL, &repo.CommitSHA, &pagesURL, &repo.SubmittedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query repository: %w", err)
	}
	repo.PagesURL = pagesURL.String
	return repo, nil
}

// --- Evaluation Operations ---

// AddEvaluation stores one check result against a repository.
func (s *Store) AddEvaluation(repositoryID string, result models.CheckResult) (*models.CheckResult, error) {
	logsJSON, err := json.Marshal(result.Logs)
	if err != nil {
		return nil, fmt.Errorf("encode logs: %w", err)
	}

	result.ID = uuid.New().String()
	result.RepositoryID = repositoryID
	if result.EvaluatedAt.IsZero() {
		result.EvaluatedAt = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO evaluations (id, repository_id, check_name, status, score, reason, logs, evaluated_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.RepositoryID, result.Name, result.Status, result.Score, result.Reason,
		string(logsJSON), result.EvaluatedAt, int64(result.Duration),
	)
	if err != nil {
		return nil, fmt.Errorf("insert evaluation: %w", err)
	}
	return &result, nil
}

// GetEvaluationsByRepository returns check results in the order they were
// recorded.
func (s *Store) GetEvaluationsByRepository(repositoryID string) ([]models.CheckResult, error) {
	rows, err := s.db.Query(
		`SELECT id, repository_id, check_name, status, score, reason, logs, evaluated_at, duration_ns
		 FROM evaluations WHERE repository_id = ? ORDER BY rowid`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var results []models.CheckResult
	for rows.Next() {
		var r models.CheckResult
		var reason, logsJSON sql.NullString
		var durationNS int64
		if err := rows.Scan(&r.ID, &r.RepositoryID, &r.Name, &r.Status, &r.Score, &reason, &logsJSON, &r.EvaluatedAt, &durationNS); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		r.Reason = reason.String
		r.Duration = time.Duration(durationNS)
		if logsJSON.Valid && logsJSON.String != "" {
			json.Unmarshal([]byte(logsJSON.String), &r.Logs)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the decision records for a task, oldest first.
func (s *Store) ListPDR(taskID string) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr WHERE task_id = ? ORDER BY timestamp, rowid`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var tid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &tid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = tid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
