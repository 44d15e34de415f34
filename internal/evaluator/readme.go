package evaluator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/samber/lo"
)

var (
	h1Pattern = regexp.MustCompile(`(?m)^# .+`)
	h2Pattern = regexp.MustCompile(`(?m)^## .+`)
)

// ReadmeQuality is the outcome of the README heuristics.
type ReadmeQuality struct {
	Checks map[string]bool
	Passed int
	Total  int
	Score  float64
	Lines  int
}

// Status maps the score to a check status. Every score of at least 0.5
// passes; a score of 0.8 or more is not treated differently.
func (q ReadmeQuality) Status() models.CheckStatus {
	if q.Score >= 0.5 {
		return models.CheckPassed
	}
	return models.CheckFailed
}

// ScoreReadme runs six independent heuristics over README text.
func ScoreReadme(text string) ReadmeQuality {
	lower := strings.ToLower(text)
	checks := map[string]bool{
		"has_title":        h1Pattern.MatchString(text),
		"has_description":  utf8.RuneCountInString(text) > 100,
		"has_sections":     len(h2Pattern.FindAllString(text, -1)) >= 2,
		"has_code_blocks":  strings.Contains(text, "```"),
		"mentions_setup":   strings.Contains(lower, "setup") || strings.Contains(lower, "install") || strings.Contains(lower, "usage"),
		"mentions_license": strings.Contains(lower, "license"),
	}

	passed := lo.CountBy(lo.Values(checks), func(ok bool) bool { return ok })
	return ReadmeQuality{
		Checks: checks,
		Passed: passed,
		Total:  len(checks),
		Score:  float64(passed) / float64(len(checks)),
		Lines:  strings.Count(text, "\n") + 1,
	}
}
