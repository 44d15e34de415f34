package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/scheduler"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server provides the HTTP API for taskforge.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/request", s.handleRequest)
	mux.HandleFunc("/api/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/evaluate/status/", s.handleEvaluationStatus)
	mux.HandleFunc("/api/evaluate/results/", s.handleEvaluationResults)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	mux.HandleFunc("/api/validate-repo", s.handleValidateRepo)

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("Starting taskforge daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	health := s.service.Health(r.Context())
	status := http.StatusOK
	if !health.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"templates": s.service.ListTemplates()})
}

// --- Student Endpoints ---

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	task, err := s.service.RequestTask(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubmissionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, err := s.service.SubmitEvaluation(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	log.Printf("Queued evaluation for task %s, repository %s", req.Task, receipt.RepositoryID)
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleEvaluationStatus(w http.ResponseWriter, r *http.Request) {
	taskID, round, ok := taskPath(w, r, "/api/evaluate/status/")
	if !ok {
		return
	}
	status, err := s.service.EvaluationStatus(taskID, round)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvaluationResults(w http.ResponseWriter, r *http.Request) {
	taskID, round, ok := taskPath(w, r, "/api/evaluate/results/")
	if !ok {
		return
	}
	results, err := s.service.EvaluationResults(taskID, round)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Operator Endpoints ---

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	list, err := s.service.ListTasks(r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, round, ok := taskPath(w, r, "/api/tasks/")
	if !ok {
		return
	}
	task, err := s.service.GetTask(taskID, round)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type validateRepoRequest struct {
	RepoURL string `json:"repo_url"`
}

func (s *Server) handleValidateRepo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req validateRepoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	validation, err := s.service.ValidateRepo(r.Context(), req.RepoURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

// --- Helpers ---

// taskPath extracts the task id after prefix and the optional ?round= query.
func taskPath(w http.ResponseWriter, r *http.Request, prefix string) (string, int, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "", 0, false
	}

	taskID := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeError(w, http.StatusBadRequest, "task id required")
		return "", 0, false
	}

	round := 0
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid round")
			return "", 0, false
		}
		round = n
	}
	return taskID, round, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, scheduler.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a coarse JSON error. Unexpected errors are logged and
// reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal server error"
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
