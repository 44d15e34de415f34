package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/fentz26/taskforge/internal/config"
	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/connectors/browser"
	"github.com/fentz26/taskforge/internal/connectors/github"
	"github.com/fentz26/taskforge/internal/connectors/httpfetch"
	"github.com/fentz26/taskforge/internal/evaluator"
	"github.com/fentz26/taskforge/internal/tasks"
)

// loadConfig reads the --config file with environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newGenerator builds the template registry: built-ins plus any template
// files in cfg.TemplatesDir.
func newGenerator(cfg *config.Config) (*tasks.Generator, error) {
	gen := tasks.NewGenerator(tasks.WithEvaluationURL(cfg.EvaluationURL))
	if cfg.TemplatesDir != "" {
		n, err := gen.LoadTemplates(cfg.TemplatesDir)
		if err != nil {
			return nil, fmt.Errorf("load templates from %s: %w", cfg.TemplatesDir, err)
		}
		log.Printf("Loaded %d templates from %s", n, cfg.TemplatesDir)
	}
	return gen, nil
}

func githubHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.GitHub.Timeout}
}

// newRepoHost returns nil when no GitHub token is configured; checks that
// need the repository host then report an error result.
func newRepoHost(cfg *config.Config) (connectors.RepoHost, error) {
	if cfg.GitHub.Token == "" {
		log.Println("Warning: no GitHub token configured, repository checks disabled")
		return nil, nil
	}
	var opts []github.Option
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.BaseURL))
	}
	client, err := github.New(cfg.GitHub.Token, githubHTTPClient(cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	return client, nil
}

// newEvaluator wires the evaluator to every configured capability.
func newEvaluator(cfg *config.Config) (*evaluator.Evaluator, connectors.RepoHost, error) {
	host, err := newRepoHost(cfg)
	if err != nil {
		return nil, nil, err
	}
	fetcher := httpfetch.New(&http.Client{}, cfg.Delivery.UserAgent)
	return evaluator.New(host, browser.New(cfg.Browser), fetcher, cfg.Evaluator), host, nil
}
