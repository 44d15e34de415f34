package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.RateLimit.Requests != 60 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("Expected 60/min rate limit, got %d/%s", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if cfg.Evaluator.PagesTimeout != 10*time.Second || cfg.Evaluator.NavigationTimeout != 15*time.Second {
		t.Errorf("Unexpected evaluator timeouts %+v", cfg.Evaluator)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Expected default listen address, got %s", cfg.Listen)
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: 0.0.0.0:9000
evaluation_url: https://grader.example.com/api/evaluate
github:
  token: ghp_file
  timeout: 45s
rate_limit:
  requests: 5
  window: 30s
evaluator:
  settle_window: 500ms
scheduler:
  queue_size: 3
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Expected listen from file, got %s", cfg.Listen)
	}
	if cfg.GitHub.Token != "ghp_file" {
		t.Errorf("Expected token from file, got %q", cfg.GitHub.Token)
	}
	if cfg.GitHub.Timeout != 45*time.Second || cfg.Delivery.Timeout != 30*time.Second {
		t.Errorf("Expected 45s github and 30s delivery timeouts, got %s and %s", cfg.GitHub.Timeout, cfg.Delivery.Timeout)
	}
	if cfg.RateLimit.Requests != 5 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Evaluator.SettleWindow != 500*time.Millisecond {
		t.Errorf("Expected 500ms settle window, got %s", cfg.Evaluator.SettleWindow)
	}
	if cfg.Evaluator.PagesTimeout != 10*time.Second {
		t.Error("Expected unset fields to keep defaults")
	}
	if cfg.Scheduler.QueueSize != 3 {
		t.Errorf("Expected queue size 3, got %d", cfg.Scheduler.QueueSize)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	os.WriteFile(path, []byte("rate_limit: [unclosed"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error")
	}

	os.WriteFile(path, []byte("rate_limit:\n  requests: 0\n"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error")
	}

	os.WriteFile(path, []byte("github:\n  timeout: 0s\n"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error for zero github timeout")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(env(map[string]string{
		"TASKFORGE_LISTEN":             "127.0.0.1:8000",
		"GITHUB_TOKEN":                 "ghp_env",
		"TASKFORGE_RATE_LIMIT":         "10",
		"TASKFORGE_DELIVERY_TIMEOUT":   "5s",
		"TASKFORGE_GITHUB_TIMEOUT":     "20s",
		"TASKFORGE_BROWSER_NO_SANDBOX": "false",
		"TASKFORGE_QUEUE_SIZE":         "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8000" || cfg.GitHub.Token != "ghp_env" {
		t.Errorf("String overrides not applied: %+v", cfg)
	}
	if cfg.RateLimit.Requests != 10 {
		t.Errorf("Expected rate limit 10, got %d", cfg.RateLimit.Requests)
	}
	if cfg.Delivery.Timeout != 5*time.Second {
		t.Errorf("Expected 5s delivery timeout, got %s", cfg.Delivery.Timeout)
	}
	if cfg.GitHub.Timeout != 20*time.Second {
		t.Errorf("Expected 20s github timeout, got %s", cfg.GitHub.Timeout)
	}
	if cfg.Browser.NoSandbox {
		t.Error("Expected no_sandbox disabled")
	}
	if cfg.Scheduler.QueueSize != DefaultConfig().Scheduler.QueueSize {
		t.Error("Expected empty variable to be ignored")
	}

	if err := DefaultConfig().ApplyEnv(noEnv); err != nil {
		t.Errorf("Expected no error without variables, got %v", err)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(env(map[string]string{"TASKFORGE_RATE_LIMIT": "lots"}))
	if err == nil {
		t.Error("Expected error for non-numeric rate limit")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.EvaluationURL = "https://grader.example.com/api/evaluate"
	cfg.Delivery.Timeout = 12 * time.Second

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.EvaluationURL != cfg.EvaluationURL || loaded.Delivery.Timeout != cfg.Delivery.Timeout {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}

	if err := SaveConfig(path, nil); err == nil {
		t.Error("Expected error for nil config")
	}
}
