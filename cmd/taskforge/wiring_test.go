package main

import (
	"testing"
	"time"

	"github.com/fentz26/taskforge/internal/config"
)

func TestGitHubHTTPClient_UsesGitHubTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.GitHub.Timeout = 45 * time.Second
	cfg.Delivery.Timeout = 5 * time.Second

	if got := githubHTTPClient(cfg).Timeout; got != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %s", got)
	}
}

func TestNewRepoHost(t *testing.T) {
	cfg := config.DefaultConfig()
	host, err := newRepoHost(cfg)
	if err != nil || host != nil {
		t.Errorf("Expected no repository host without a token, got %v %v", host, err)
	}

	cfg.GitHub.Token = "ghp_test"
	cfg.GitHub.BaseURL = "http://github.test/api/"
	host, err = newRepoHost(cfg)
	if err != nil || host == nil {
		t.Errorf("Expected repository host with a token, got %v %v", host, err)
	}
}
