// Package connectors defines the capability interfaces taskforge grades
// submissions through.
package connectors

import (
	"context"
	"errors"
	"time"
)

// ErrNavigationTimeout is returned by a Browser when the page did not finish
// loading within the navigation timeout.
var ErrNavigationTimeout = errors.New("navigation timed out")

// ErrReadmeNotFound is returned by a RepoHost when a repository has no README.
var ErrReadmeNotFound = errors.New("README not found")

// Validation is a repository host's view of a submitted repository.
type Validation struct {
	Valid        bool           `json:"valid"`
	Error        string         `json:"error,omitempty"`
	RepoName     string         `json:"repo_name,omitempty"`
	HasLicense   bool           `json:"has_license"`
	HasReadme    bool           `json:"has_readme"`
	Languages    map[string]int `json:"languages,omitempty"`
	Size         int64          `json:"size"`
	CommitCount  int            `json:"commit_count"`
	PagesEnabled bool           `json:"pages_enabled"`
	PagesURL     string         `json:"pages_url,omitempty"`
}

// RepoInfo describes an accessible repository.
type RepoInfo struct {
	Owner       string
	Name        string
	FullName    string
	Size        int64 // bytes
	CommitCount int
	Languages   map[string]int
}

// RepoHost is the repository hosting capability.
type RepoHost interface {
	// ValidateRepository inspects the repository at url. A missing or
	// inaccessible repository is reported through Validation.Valid; the
	// error is reserved for failures talking to the host.
	ValidateRepository(ctx context.Context, url string) (*Validation, error)

	// GetRepository returns nil, nil when the repository does not exist.
	// name may be "owner/repo" or a repository URL.
	GetRepository(ctx context.Context, name string) (*RepoInfo, error)

	// ReadmeText returns the decoded README, or ErrReadmeNotFound.
	ReadmeText(ctx context.Context, repo *RepoInfo) (string, error)
}

// LoadOptions bound a page load.
type LoadOptions struct {
	Timeout time.Duration // navigation
	Settle  time.Duration // wait after load while errors are collected
}

// Page is what a browser observed while loading a URL.
type Page struct {
	Title         string
	HTML          string
	ScriptErrors  []string
	ConsoleErrors []string
}

// Browser is the headless browser capability. Each call runs in an
// isolated context that is torn down before LoadPage returns.
type Browser interface {
	LoadPage(ctx context.Context, url string, opts LoadOptions) (*Page, error)
}

// FetchResult is the outcome of a completed HTTP GET.
type FetchResult struct {
	StatusCode int
	Elapsed    time.Duration
	ByteLength int64
}

// Fetcher is the plain HTTP fetch capability.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error)
}
