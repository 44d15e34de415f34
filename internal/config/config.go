// Package config loads the taskforge daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/taskforge/internal/connectors/browser"
	"github.com/fentz26/taskforge/internal/evaluator"
	"github.com/fentz26/taskforge/internal/ratelimit"
	"github.com/fentz26/taskforge/internal/scheduler"
)

// DirName is the per-user directory holding the config file and database.
const DirName = ".taskforge"

// Config holds daemon configuration.
type Config struct {
	// Listen is the API server address.
	Listen string `yaml:"listen"`
	// Database is the SQLite file path.
	Database string `yaml:"database"`
	// EvaluationURL is handed to students as the submission endpoint.
	EvaluationURL string `yaml:"evaluation_url"`
	// TemplatesDir holds extra YAML/TOML task templates.
	TemplatesDir string `yaml:"templates_dir"`

	GitHub    GitHubConfig     `yaml:"github"`
	Browser   browser.Config   `yaml:"browser"`
	Evaluator evaluator.Config `yaml:"evaluator"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Delivery  DeliveryConfig   `yaml:"delivery"`
}

// GitHubConfig configures the repository host.
type GitHubConfig struct {
	// Token enables the repository host. Empty disables repository checks.
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
	// Timeout bounds each GitHub API call.
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds task requests per identity.
type RateLimitConfig struct {
	Requests      int           `yaml:"requests"`
	Window        time.Duration `yaml:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DeliveryConfig configures task delivery to student endpoints.
type DeliveryConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent"`
}

// Dir returns ~/.taskforge, or .taskforge when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns ~/.taskforge/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:7466",
		Database:      filepath.Join(Dir(), "taskforge.db"),
		EvaluationURL: "http://127.0.0.1:7466/api/evaluate",
		GitHub:        GitHubConfig{Timeout: 30 * time.Second},
		Browser:       browser.Config{NoSandbox: true},
		Evaluator:     evaluator.DefaultConfig(),
		Scheduler:     *scheduler.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Requests:      ratelimit.DefaultLimit,
			Window:        ratelimit.DefaultWindow,
			SweepInterval: ratelimit.DefaultSweepInterval,
		},
		Delivery: DeliveryConfig{
			Timeout:     30 * time.Second,
			Concurrency: 8,
			UserAgent:   "taskforge",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults. Environment overrides are applied after the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from TASKFORGE_* variables and GITHUB_TOKEN.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parsed := func(key string, apply func(string) error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := apply(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	str("TASKFORGE_LISTEN", &c.Listen)
	str("TASKFORGE_DB", &c.Database)
	str("TASKFORGE_EVALUATION_URL", &c.EvaluationURL)
	str("TASKFORGE_TEMPLATES_DIR", &c.TemplatesDir)
	str("TASKFORGE_CHROME_PATH", &c.Browser.ExecPath)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("TASKFORGE_GITHUB_TOKEN", &c.GitHub.Token)

	parsed("TASKFORGE_RATE_LIMIT", func(v string) (err error) {
		c.RateLimit.Requests, err = cast.ToIntE(v)
		return err
	})
	parsed("TASKFORGE_QUEUE_SIZE", func(v string) (err error) {
		c.Scheduler.QueueSize, err = cast.ToIntE(v)
		return err
	})
	parsed("TASKFORGE_GITHUB_TIMEOUT", func(v string) (err error) {
		c.GitHub.Timeout, err = cast.ToDurationE(v)
		return err
	})
	parsed("TASKFORGE_DELIVERY_TIMEOUT", func(v string) (err error) {
		c.Delivery.Timeout, err = cast.ToDurationE(v)
		return err
	})
	parsed("TASKFORGE_DELIVERY_CONCURRENCY", func(v string) (err error) {
		c.Delivery.Concurrency, err = cast.ToIntE(v)
		return err
	})
	parsed("TASKFORGE_BROWSER_NO_SANDBOX", func(v string) (err error) {
		c.Browser.NoSandbox, err = cast.ToBoolE(v)
		return err
	})

	return errors.Join(errs...)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.Scheduler.QueueSize <= 0 {
		return fmt.Errorf("scheduler.queue_size must be positive, got %d", c.Scheduler.QueueSize)
	}
	if c.Scheduler.JobTimeout <= 0 {
		return fmt.Errorf("scheduler.job_timeout must be positive")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery.timeout must be positive")
	}
	if c.Delivery.Concurrency <= 0 {
		return fmt.Errorf("delivery.concurrency must be positive, got %d", c.Delivery.Concurrency)
	}
	return nil
}

// SaveConfig writes cfg as YAML, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
