package tui

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// ErrNoSubmission is returned by GetResults when nothing was submitted yet.
var ErrNoSubmission = errors.New("no submission yet")

// Client wraps HTTP calls to the taskforge API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListTasks fetches tasks from the API
func (c *Client) ListTasks(status string) ([]TaskItem, error) {
	path := "/api/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var tasks []models.Task
	if err := c.get(path, &tasks); err != nil {
		return nil, err
	}

	return lo.Map(tasks, func(t models.Task, _ int) TaskItem {
		return TaskItem{
			ID:       t.ID,
			Round:    t.Round,
			Identity: t.Identity,
			Template: t.TemplateID,
			Status:   string(t.Status),
		}
	}), nil
}

// GetTask fetches a single task
func (c *Client) GetTask(id string, round int) (*TaskDetail, error) {
	var t models.Task
	if err := c.get(taskPath("/api/tasks/", id, round), &t); err != nil {
		return nil, err
	}

	return &TaskDetail{
		ID:          t.ID,
		Round:       t.Round,
		Identity:    t.Identity,
		Template:    t.TemplateID,
		Status:      string(t.Status),
		Brief:       t.Brief,
		Checks:      t.Checks,
		Attachments: lo.Map(t.Attachments, func(a models.Attachment, _ int) string { return a.Name }),
		StatusCode:  t.StatusCode,
		Error:       t.ErrorMessage,
		CreatedAt:   t.CreatedAt,
		SentAt:      t.SentAt,
		ReceivedAt:  t.ReceivedAt,
	}, nil
}

// GetResults fetches the check results of a task's latest submission
func (c *Client) GetResults(id string, round int) (*Results, error) {
	var body struct {
		RepoURL   string               `json:"repository_url"`
		CommitSHA string               `json:"commit_sha"`
		PagesURL  string               `json:"pages_url"`
		Results   []models.CheckResult `json:"results"`
	}
	err := c.get(taskPath("/api/evaluate/results/", id, round), &body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, ErrNoSubmission
	}
	if err != nil {
		return nil, err
	}

	return &Results{
		RepoURL:   body.RepoURL,
		CommitSHA: body.CommitSHA,
		PagesURL:  body.PagesURL,
		Checks: lo.Map(body.Results, func(r models.CheckResult, _ int) CheckRow {
			return CheckRow{Name: r.Name, Status: string(r.Status), Score: r.Score, Reason: r.Reason, Duration: r.Duration}
		}),
	}, nil
}

// ValidateRepo asks the daemon to validate a repository URL
func (c *Client) ValidateRepo(repoURL string) (*connectors.Validation, error) {
	var v connectors.Validation
	if err := c.post("/api/validate-repo", map[string]string{"repo_url": repoURL}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListTemplates fetches the registered template ids
func (c *Client) ListTemplates() ([]string, error) {
	var body struct {
		Templates []string `json:"templates"`
	}
	if err := c.get("/api/templates", &body); err != nil {
		return nil, err
	}
	return body.Templates, nil
}

// CheckHealth fetches the daemon health summary
func (c *Client) CheckHealth() (*HealthInfo, error) {
	var body struct {
		OK          bool           `json:"ok"`
		DB          string         `json:"db"`
		Version     string         `json:"version"`
		QueueLength int            `json:"queue_length"`
		Tasks       map[string]int `json:"tasks"`
	}
	// An unhealthy daemon answers 503 with the same body.
	err := c.get("/health", &body)
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable) {
		return nil, err
	}
	return &HealthInfo{
		OK:          body.OK,
		DB:          body.DB,
		Version:     body.Version,
		QueueLength: body.QueueLength,
		Tasks:       body.Tasks,
	}, nil
}

// APIError is a non-2xx response from the daemon
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func taskPath(prefix, id string, round int) string {
	path := prefix + url.PathEscape(id)
	if round > 0 {
		path += "?round=" + strconv.Itoa(round)
	}
	return path
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *Client) post(path string, data, out interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

// decode reads a JSON response into out. Error responses are decoded too,
// since the health endpoint reports failure with a full body.
func decode(resp *http.Response, out interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(data)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		json.Unmarshal(data, out)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return json.Unmarshal(data, out)
}
