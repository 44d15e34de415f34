package evaluator

import (
	"context"
	"strings"
	"testing"

	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/models"
)

func TestScoreReadme(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		passed int
		status models.CheckStatus
	}{
		{"empty", "", 0, models.CheckFailed},
		{"full", goodReadme, 6, models.CheckPassed},
		{
			// H1, >100 chars, one fenced block; no H2, setup or license.
			"boundary",
			"# Sales\n\n" + strings.Repeat("This page sums the sales column. ", 4) + "\n\n```\nnpm start\n```\n",
			3, models.CheckPassed,
		},
		{"two of six", "# Title\n\nsee the license", 2, models.CheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ScoreReadme(tt.text)
			if q.Passed != tt.passed {
				t.Errorf("Expected %d heuristics, got %d (%v)", tt.passed, q.Passed, q.Checks)
			}
			if q.Total != 6 {
				t.Errorf("Expected 6 heuristics, got %d", q.Total)
			}
			if q.Status() != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, q.Status())
			}
		})
	}
}

func TestScoreReadme_H2Count(t *testing.T) {
	if ScoreReadme("## One\n").Checks["has_sections"] {
		t.Error("One H2 section should not count")
	}
	if !ScoreReadme("## One\n## Two\n").Checks["has_sections"] {
		t.Error("Two H2 sections should count")
	}
	if ScoreReadme("text # not a title").Checks["has_title"] {
		t.Error("H1 must start a line")
	}
}

func TestEvaluate_ReadmeBoundary(t *testing.T) {
	repo := healthyRepo()
	repo.readme = "# Sales\n\n" + strings.Repeat("This page sums the sales column. ", 4) + "\n\n```\nnpm start\n```\n"
	e := New(repo, nil, nil, DefaultConfig())

	results := e.Evaluate(context.Background(), Submission{RepoURL: "https://github.com/alice/sales"})
	r := byName(results)[CheckReadmeQuality]
	if r.Score != 0.5 || r.Status != models.CheckPassed {
		t.Errorf("Expected 0.5 passed, got %v %s", r.Score, r.Status)
	}
	if r.Reason != "README quality score: 0.50 (3/6 checks passed)" {
		t.Errorf("Unexpected reason %q", r.Reason)
	}
}

var _ connectors.RepoHost = (*fakeRepoHost)(nil)
