// Package evaluator grades a repository submission with an ordered series
// of independently scored checks.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/models"
	"github.com/samber/lo"
)

// Check names.
const (
	CheckGitHubIntegration    = "github_integration"
	CheckRepositoryExists     = "repository_exists"
	CheckLicense              = "license_check"
	CheckReadmeExists         = "readme_exists"
	CheckRepositoryValidation = "repository_validation"
	CheckPagesAvailability    = "pages_availability"
	CheckJavaScriptErrors     = "javascript_errors"
	CheckConsoleErrors        = "console_errors"
	CheckPageTitle            = "page_title"
	CheckPageContent          = "page_content"
	CheckPageLoad             = "page_load"
	CheckDynamic              = "dynamic_checks"
	CheckHasCommits           = "has_commits"
	CheckRepositorySize       = "repository_size"
	CheckLanguageDiversity    = "language_diversity"
	CheckCodeQuality          = "code_quality"
	CheckReadmeQuality        = "readme_quality"
	CheckEvaluationError      = "evaluation_error"
	CheckSystemError          = "system_error"
)

// maxLoggedErrors caps script and console errors kept in check logs.
const maxLoggedErrors = 5

// Config bounds the network-facing stages.
type Config struct {
	PagesTimeout      time.Duration `yaml:"pages_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleWindow      time.Duration `yaml:"settle_window"`
}

// DefaultConfig returns the standard timeouts.
func DefaultConfig() Config {
	return Config{
		PagesTimeout:      10 * time.Second,
		NavigationTimeout: 15 * time.Second,
		SettleWindow:      2 * time.Second,
	}
}

// Submission identifies what to grade.
type Submission struct {
	RepoURL   string
	CommitSHA string
	PagesURL  string
}

// Evaluator runs the grading stages. Any capability may be nil; checks that
// need a missing capability report an error result instead.
type Evaluator struct {
	repo    connectors.RepoHost
	browser connectors.Browser
	fetcher connectors.Fetcher
	cfg     Config
	now     func() time.Time
}

// New creates an evaluator.
func New(repo connectors.RepoHost, browser connectors.Browser, fetcher connectors.Fetcher, cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.PagesTimeout <= 0 {
		cfg.PagesTimeout = def.PagesTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.SettleWindow < 0 {
		cfg.SettleWindow = def.SettleWindow
	}
	return &Evaluator{repo: repo, browser: browser, fetcher: fetcher, cfg: cfg, now: time.Now}
}

// HasRepoHost reports whether the repository host capability is configured.
func (e *Evaluator) HasRepoHost() bool { return e.repo != nil }

// run carries per-evaluation state so the repository is looked up once.
type run struct {
	sub     Submission
	info    *connectors.RepoInfo
	infoErr error
	fetched bool
}

// Evaluate runs every stage in order and returns all results. It never
// returns an empty slice: an unexpected failure outside the stages yields a
// single evaluation_error result.
func (e *Evaluator) Evaluate(ctx context.Context, sub Submission) (results []models.CheckResult) {
	var start time.Time
	defer func() {
		if r := recover(); r != nil {
			log.Printf("evaluator: evaluation of %s panicked: %v", sub.RepoURL, r)
			res := errorResult(CheckEvaluationError, fmt.Sprintf("Evaluation failed: %v", r), map[string]any{
				"error":     fmt.Sprint(r),
				"traceback": fmt.Sprintf("%T", r),
			})
			results = e.stamp([]models.CheckResult{res}, start)
		}
	}()

	start = e.now()
	log.Printf("Starting evaluation of repository: %s", sub.RepoURL)
	r := &run{sub: sub}

	results = append(results, e.stage(CheckRepositoryValidation, "Repository validation", func() []models.CheckResult {
		return e.validateRepository(ctx, r)
	})...)

	if sub.PagesURL != "" {
		results = append(results, e.stage(CheckPagesAvailability, "Pages check", func() []models.CheckResult {
			return []models.CheckResult{e.checkPages(ctx, sub.PagesURL)}
		})...)
		results = append(results, e.stage(CheckDynamic, "Dynamic checks", func() []models.CheckResult {
			return e.dynamicChecks(ctx, sub.PagesURL)
		})...)
	}

	if e.repo != nil {
		results = append(results, e.stage(CheckCodeQuality, "Code quality check", func() []models.CheckResult {
			return e.codeQuality(ctx, r)
		})...)
	}

	results = append(results, e.stage(CheckReadmeQuality, "README quality check", func() []models.CheckResult {
		return []models.CheckResult{e.readmeQuality(ctx, r)}
	})...)

	log.Printf("Completed evaluation of %s with %d checks", sub.RepoURL, len(results))
	return results
}

// stage runs fn, converting a panic into one error result named errCheck,
// and stamps every result with the stage's timing.
func (e *Evaluator) stage(errCheck, label string, fn func() []models.CheckResult) (results []models.CheckResult) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("evaluator: %s panicked: %v", label, r)
			results = []models.CheckResult{errorResult(errCheck, fmt.Sprintf("%s failed: %v", label, r), map[string]any{"error": fmt.Sprint(r)})}
		}
		results = e.stamp(results, start)
	}()
	return fn()
}

func (e *Evaluator) stamp(results []models.CheckResult, start time.Time) []models.CheckResult {
	end := e.now()
	for i := range results {
		if results[i].EvaluatedAt.IsZero() {
			results[i].EvaluatedAt = end.UTC()
		}
		if results[i].Duration == 0 && !start.IsZero() {
			results[i].Duration = end.Sub(start)
		}
		if results[i].Logs == nil {
			results[i].Logs = map[string]any{}
		}
	}
	return results
}

func (e *Evaluator) repoInfo(ctx context.Context, r *run) (*connectors.RepoInfo, error) {
	if !r.fetched {
		r.info, r.infoErr = e.repo.GetRepository(ctx, r.sub.RepoURL)
		r.fetched = true
	}
	return r.info, r.infoErr
}

// --- Stage 1: repository validation ---

func (e *Evaluator) validateRepository(ctx context.Context, r *run) []models.CheckResult {
	if e.repo == nil {
		return []models.CheckResult{errorResult(CheckGitHubIntegration, "GitHub integration not available", nil)}
	}

	v, err := e.repo.ValidateRepository(ctx, r.sub.RepoURL)
	if err != nil {
		return []models.CheckResult{errorResult(CheckRepositoryValidation,
			fmt.Sprintf("Repository validation failed: %v", err), map[string]any{"error": err.Error()})}
	}

	if !v.Valid {
		reason := v.Error
		if reason == "" {
			reason = "Repository not accessible"
		}
		return []models.CheckResult{failedResult(CheckRepositoryExists, reason, validationLogs(v))}
	}

	results := []models.CheckResult{passedResult(CheckRepositoryExists, "Repository is accessible", validationLogs(v))}
	if v.HasLicense {
		results = append(results, passedResult(CheckLicense, "MIT license found", nil))
	} else {
		results = append(results, failedResult(CheckLicense, "MIT license not found", nil))
	}
	if v.HasReadme {
		results = append(results, passedResult(CheckReadmeExists, "README.md found", nil))
	} else {
		results = append(results, failedResult(CheckReadmeExists, "README.md not found", nil))
	}
	return results
}

func validationLogs(v *connectors.Validation) map[string]any {
	logs := map[string]any{
		"valid":         v.Valid,
		"has_license":   v.HasLicense,
		"has_readme":    v.HasReadme,
		"size":          v.Size,
		"commit_count":  v.CommitCount,
		"pages_enabled": v.PagesEnabled,
	}
	if v.Error != "" {
		logs["error"] = v.Error
	}
	if v.RepoName != "" {
		logs["repo_name"] = v.RepoName
	}
	if v.PagesURL != "" {
		logs["pages_url"] = v.PagesURL
	}
	if len(v.Languages) > 0 {
		logs["languages"] = v.Languages
	}
	return logs
}

// --- Stage 2: live page availability ---

func (e *Evaluator) checkPages(ctx context.Context, pagesURL string) models.CheckResult {
	if e.fetcher == nil {
		return errorResult(CheckPagesAvailability, "HTTP fetch capability not available", nil)
	}

	res, err := e.fetcher.Get(ctx, pagesURL, e.cfg.PagesTimeout)
	if err != nil {
		logs := map[string]any{"error": err.Error()}
		if errors.Is(err, context.DeadlineExceeded) {
			logs["timeout_ms"] = e.cfg.PagesTimeout.Milliseconds()
		}
		return failedResult(CheckPagesAvailability, fmt.Sprintf("GitHub Pages not accessible: %v", err), logs)
	}

	if res.StatusCode != 200 {
		return failedResult(CheckPagesAvailability, fmt.Sprintf("GitHub Pages returned HTTP %d", res.StatusCode),
			map[string]any{"status_code": res.StatusCode})
	}
	return passedResult(CheckPagesAvailability, fmt.Sprintf("GitHub Pages accessible (HTTP %d)", res.StatusCode),
		map[string]any{
			"status_code":      res.StatusCode,
			"response_time_ms": res.Elapsed.Milliseconds(),
			"content_length":   res.ByteLength,
		})
}

// --- Stage 3: dynamic in-page checks ---

func (e *Evaluator) dynamicChecks(ctx context.Context, pagesURL string) []models.CheckResult {
	if e.browser == nil {
		return []models.CheckResult{errorResult(CheckDynamic, "Dynamic checks failed: browser not available", nil)}
	}

	page, err := e.browser.LoadPage(ctx, pagesURL, connectors.LoadOptions{
		Timeout: e.cfg.NavigationTimeout,
		Settle:  e.cfg.SettleWindow,
	})
	if errors.Is(err, connectors.ErrNavigationTimeout) {
		return []models.CheckResult{failedResult(CheckPageLoad, "Page failed to load within timeout",
			map[string]any{"timeout_ms": e.cfg.NavigationTimeout.Milliseconds()})}
	}
	if err != nil {
		return []models.CheckResult{errorResult(CheckDynamic, fmt.Sprintf("Dynamic checks failed: %v", err),
			map[string]any{"error": err.Error()})}
	}

	var results []models.CheckResult

	if len(page.ScriptErrors) > 0 {
		results = append(results, failedResult(CheckJavaScriptErrors,
			fmt.Sprintf("JavaScript errors detected: %d", len(page.ScriptErrors)),
			map[string]any{"errors": lo.Subset(page.ScriptErrors, 0, maxLoggedErrors)}))
	} else {
		results = append(results, passedResult(CheckJavaScriptErrors, "No JavaScript errors detected", nil))
	}

	if len(page.ConsoleErrors) > 0 {
		res := failedResult(CheckConsoleErrors, fmt.Sprintf("Console errors detected: %d", len(page.ConsoleErrors)),
			map[string]any{"errors": lo.Subset(page.ConsoleErrors, 0, maxLoggedErrors)})
		res.Score = 0.5
		results = append(results, res)
	}

	if title := page.Title; len(strings.TrimSpace(title)) > 0 {
		results = append(results, passedResult(CheckPageTitle, fmt.Sprintf("Page has title: %s...", truncateRunes(title, 50)),
			map[string]any{"title": title}))
	} else {
		results = append(results, failedResult(CheckPageTitle, "Page missing title", nil))
	}

	body := BodyText(page.HTML)
	if len(strings.TrimSpace(body)) > 0 {
		results = append(results, passedResult(CheckPageContent, "Page has content",
			map[string]any{"content_length": utf8.RuneCountInString(body)}))
	} else {
		results = append(results, failedResult(CheckPageContent, "Page appears to have no content", nil))
	}

	return results
}

// --- Stage 4: code quality signals ---

func (e *Evaluator) codeQuality(ctx context.Context, r *run) []models.CheckResult {
	info, err := e.repoInfo(ctx, r)
	if err != nil {
		log.Printf("evaluator: code quality lookup failed for %s: %v", r.sub.RepoURL, err)
		return []models.CheckResult{errorResult(CheckCodeQuality, fmt.Sprintf("Code quality check failed: %v", err),
			map[string]any{"error": err.Error()})}
	}
	if info == nil {
		return nil
	}

	var results []models.CheckResult
	if info.CommitCount > 0 {
		results = append(results, passedResult(CheckHasCommits, fmt.Sprintf("Repository has %d commits", info.CommitCount),
			map[string]any{"commit_count": info.CommitCount}))
	} else {
		results = append(results, failedResult(CheckHasCommits, "Repository has no commits", nil))
	}

	if info.Size > 0 {
		results = append(results, passedResult(CheckRepositorySize,
			fmt.Sprintf("Repository size: %.1f MB", float64(info.Size)/(1024*1024)),
			map[string]any{"size_bytes": info.Size}))
	}

	// Zero languages emits nothing.
	languages := lo.Keys(info.Languages)
	sort.Strings(languages)
	switch {
	case len(languages) > 1:
		res := passedResult(CheckLanguageDiversity, fmt.Sprintf("Uses %d programming languages", len(languages)),
			map[string]any{"languages": languages})
		res.Score = 0.8
		results = append(results, res)
	case len(languages) == 1:
		res := passedResult(CheckLanguageDiversity, "Uses 1 programming language",
			map[string]any{"languages": languages})
		res.Score = 0.6
		results = append(results, res)
	}
	return results
}

// --- Stage 5: README quality ---

func (e *Evaluator) readmeQuality(ctx context.Context, r *run) models.CheckResult {
	if e.repo == nil {
		return errorResult(CheckReadmeQuality, "GitHub integration not available", nil)
	}

	info, err := e.repoInfo(ctx, r)
	if err != nil {
		return errorResult(CheckReadmeQuality, fmt.Sprintf("README quality check failed: %v", err),
			map[string]any{"error": err.Error()})
	}
	if info == nil {
		return failedResult(CheckReadmeQuality, "Repository not accessible", nil)
	}

	text, err := e.repo.ReadmeText(ctx, info)
	if err != nil {
		return failedResult(CheckReadmeQuality, "README.md not found or not accessible", nil)
	}

	q := ScoreReadme(text)
	res := models.CheckResult{
		Name:   CheckReadmeQuality,
		Status: q.Status(),
		Score:  q.Score,
		Reason: fmt.Sprintf("README quality score: %.2f (%d/%d checks passed)", q.Score, q.Passed, q.Total),
		Logs: map[string]any{
			"checks":         q.Checks,
			"content_length": utf8.RuneCountInString(text),
			"line_count":     q.Lines,
		},
	}
	return res
}

// --- result helpers ---

func passedResult(name, reason string, logs map[string]any) models.CheckResult {
	return models.CheckResult{Name: name, Status: models.CheckPassed, Score: 1.0, Reason: reason, Logs: logs}
}

func failedResult(name, reason string, logs map[string]any) models.CheckResult {
	return models.CheckResult{Name: name, Status: models.CheckFailed, Score: 0.0, Reason: reason, Logs: logs}
}

func errorResult(name, reason string, logs map[string]any) models.CheckResult {
	return models.CheckResult{Name: name, Status: models.CheckError, Score: 0.0, Reason: reason, Logs: logs}
}

// SystemError is the synthetic result recorded when evaluating a
// submission fails outside the evaluator.
func SystemError(err error) models.CheckResult {
	return models.CheckResult{
		Name:        CheckSystemError,
		Status:      models.CheckError,
		Score:       0.0,
		Reason:      fmt.Sprintf("System error during evaluation: %v", err),
		Logs:        map[string]any{"error": err.Error()},
		EvaluatedAt: time.Now().UTC(),
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
