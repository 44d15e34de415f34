// Package github implements the repository host capability on the GitHub
// REST API.
package github

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/fentz26/taskforge/internal/connectors"
	gh "github.com/google/go-github/v66/github"
)

// Client is a connectors.RepoHost backed by go-github.
type Client struct {
	gh *gh.Client
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL points the client at a different API root, such as GitHub
// Enterprise or a test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		c.gh.BaseURL = u
		return nil
	}
}

// New creates a client. An empty token makes unauthenticated requests,
// which GitHub rate limits heavily.
func New(token string, httpClient *http.Client, opts ...Option) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	c := &Client{gh: client}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ValidateRepository inspects the repository behind repoURL.
func (c *Client) ValidateRepository(ctx context.Context, repoURL string) (*connectors.Validation, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return &connectors.Validation{Valid: false, Error: err.Error()}, nil
	}

	info, err := c.GetRepository(ctx, owner+"/"+name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return &connectors.Validation{Valid: false, Error: "Repository not found"}, nil
	}

	v := &connectors.Validation{
		Valid:       true,
		RepoName:    info.Name,
		HasLicense:  c.hasLicense(ctx, owner, name),
		HasReadme:   c.hasReadme(ctx, owner, name),
		Languages:   info.Languages,
		Size:        info.Size,
		CommitCount: info.CommitCount,
	}

	pages, _, err := c.gh.Repositories.GetPagesInfo(ctx, owner, name)
	if err == nil && pages.GetHTMLURL() != "" {
		v.PagesEnabled = true
		v.PagesURL = pages.GetHTMLURL()
	} else {
		v.PagesURL = PagesURL(owner, name)
	}
	return v, nil
}

// GetRepository loads repository metadata, languages and commit count.
func (c *Client) GetRepository(ctx context.Context, name string) (*connectors.RepoInfo, error) {
	owner, repoName, err := splitName(name)
	if err != nil {
		return nil, err
	}

	repo, resp, err := c.gh.Repositories.Get(ctx, owner, repoName)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden) {
			return nil, nil
		}
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repoName, err)
	}

	info := &connectors.RepoInfo{
		Owner:    repo.GetOwner().GetLogin(),
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		Size:     int64(repo.GetSize()) * 1024, // API reports KiB
	}
	if info.Owner == "" {
		info.Owner = owner
	}
	if info.Name == "" {
		info.Name = repoName
	}

	langs, _, err := c.gh.Repositories.ListLanguages(ctx, owner, repoName)
	if err != nil {
		log.Printf("github: failed to list languages for %s/%s: %v", owner, repoName, err)
		langs = map[string]int{}
	}
	info.Languages = langs
	info.CommitCount = c.commitCount(ctx, owner, repoName)
	return info, nil
}

// ReadmeText returns the repository README decoded to text.
func (c *Client) ReadmeText(ctx context.Context, repo *connectors.RepoInfo) (string, error) {
	content, resp, err := c.gh.Repositories.GetReadme(ctx, repo.Owner, repo.Name, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", connectors.ErrReadmeNotFound
		}
		return "", fmt.Errorf("get readme: %w", err)
	}
	text, err := content.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode readme: %w", err)
	}
	return text, nil
}

func (c *Client) hasLicense(ctx context.Context, owner, name string) bool {
	_, _, err := c.gh.Repositories.License(ctx, owner, name)
	return err == nil
}

func (c *Client) hasReadme(ctx context.Context, owner, name string) bool {
	_, _, err := c.gh.Repositories.GetReadme(ctx, owner, name, nil)
	return err == nil
}

// commitCount asks for one commit per page and reads the page count from
// the Link header. Empty repositories answer 409 and count as zero.
func (c *Client) commitCount(ctx context.Context, owner, name string) int {
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0
	}
	if resp.LastPage > 0 {
		return resp.LastPage
	}
	return len(commits)
}

func splitName(name string) (string, string, error) {
	if strings.Contains(name, "github.com") {
		return ParseRepoURL(name)
	}
	owner, repo, ok := strings.Cut(strings.Trim(name, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository name %q", name)
	}
	return owner, strings.TrimSuffix(repo, ".git"), nil
}
