// Package delivery posts issued tasks to student endpoints.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/taskforge/internal/models"
)

// DefaultTimeout bounds a single delivery request.
const DefaultTimeout = 30 * time.Second

// Payload is the JSON body sent to a student endpoint.
type Payload struct {
	Identity      string              `json:"identity"`
	Secret        string              `json:"secret"`
	Task          string              `json:"task"`
	Round         int                 `json:"round"`
	Nonce         string              `json:"nonce"`
	Brief         string              `json:"brief"`
	Checks        []string            `json:"checks"`
	EvaluationURL string              `json:"evaluation_url"`
	Attachments   []models.Attachment `json:"attachments"`
}

// NewPayload builds the delivery body for task.
func NewPayload(student *models.Student, task *models.Task) Payload {
	return Payload{
		Identity:      student.Identity,
		Secret:        student.Secret,
		Task:          task.ID,
		Round:         task.Round,
		Nonce:         task.Nonce,
		Brief:         task.Brief,
		Checks:        task.Checks,
		EvaluationURL: task.EvaluationURL,
		Attachments:   task.Attachments,
	}
}

// Client delivers payloads over HTTP.
type Client struct {
	http      *http.Client
	userAgent string
}

// New creates a delivery client. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Deliver POSTs payload to endpoint and returns the response status code.
// Only HTTP 200 counts as delivered; callers decide what to do with other
// codes. err is set only when no response was received.
func (c *Client) Deliver(ctx context.Context, endpoint string, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, nil
}
