package tasks

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fentz26/taskforge/internal/seed"
)

func TestNewGenerator_Builtins(t *testing.T) {
	g := NewGenerator()
	want := []string{"sum-of-sales", "markdown-to-html", "github-user-created"}
	got := g.ListTemplates()
	if len(got) != len(want) {
		t.Fatalf("Expected %d templates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Template %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestGenerateTask_StableWithinHour(t *testing.T) {
	clock := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return clock }))

	first, err := g.GenerateTask("alice@example.com", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateTask failed: %v", err)
	}

	clock = clock.Add(50 * time.Minute)
	second, err := g.GenerateTask("alice@example.com", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateTask failed: %v", err)
	}

	if first.TemplateID != second.TemplateID {
		t.Errorf("Template changed within the hour: %s vs %s", first.TemplateID, second.TemplateID)
	}
	if first.ID != second.ID || first.Brief != second.Brief {
		t.Errorf("Task content changed within the hour")
	}
	if first.Seed != seed.GenerateSeed("alice@example.com", "2024-01-15-09") {
		t.Errorf("Unexpected seed %s", first.Seed)
	}
	if first.Identity != "alice@example.com" {
		t.Errorf("Expected identity to be set, got %q", first.Identity)
	}

	clock = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	third, err := g.GenerateTask("alice@example.com", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateTask failed: %v", err)
	}
	if third.Seed == first.Seed {
		t.Errorf("Expected a new seed in the next bucket")
	}
	if third.TemplateID != first.TemplateID {
		t.Errorf("Template selection should depend only on identity")
	}
}

func TestGenerateTask_UnknownTemplate(t *testing.T) {
	g := NewGenerator()
	_, err := g.GenerateTask("alice@example.com", GenerateOptions{TemplateID: "nope"})
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("Expected ErrUnknownTemplate, got %v", err)
	}
}

func TestGenerateTask_ExplicitTemplateAndRound(t *testing.T) {
	g := NewGenerator(WithEvaluationURL("http://grader:5001/api/evaluate"))
	task, err := g.GenerateForBucket("bob@example.com", "2024-01-15-09", GenerateOptions{
		TemplateID: "markdown-to-html",
		Round:      2,
	})
	if err != nil {
		t.Fatalf("GenerateForBucket failed: %v", err)
	}
	if task.TemplateID != "markdown-to-html" || task.Round != 2 {
		t.Errorf("Unexpected task %s round %d", task.TemplateID, task.Round)
	}
	if task.EvaluationURL != "http://grader:5001/api/evaluate" {
		t.Errorf("Expected generator evaluation url, got %s", task.EvaluationURL)
	}
}

func TestGenerateForBucket_BadBucket(t *testing.T) {
	g := NewGenerator()
	if _, err := g.GenerateForBucket("alice@example.com", "yesterday", GenerateOptions{}); err == nil {
		t.Error("Expected an error for a malformed bucket")
	}
}

func TestSelectTemplate_Distribution(t *testing.T) {
	g := NewGenerator()
	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		id, err := g.SelectTemplate(fmt.Sprintf("student%d@example.com", i))
		if err != nil {
			t.Fatalf("SelectTemplate failed: %v", err)
		}
		counts[id]++
	}
	for _, id := range g.ListTemplates() {
		if counts[id] < 50 {
			t.Errorf("Template %s selected only %d/300 times", id, counts[id])
		}
	}
}

func TestAddTemplate_ReplaceKeepsOrder(t *testing.T) {
	g := NewGenerator()
	if err := g.AddTemplate("custom", Definition{Round1: RoundSpec{Brief: "v1"}}); err != nil {
		t.Fatalf("AddTemplate failed: %v", err)
	}
	if err := g.AddTemplate("sum-of-sales", Definition{Round1: RoundSpec{Brief: "replaced"}}); err != nil {
		t.Fatalf("AddTemplate failed: %v", err)
	}

	ids := g.ListTemplates()
	if len(ids) != 4 || ids[0] != "sum-of-sales" || ids[3] != "custom" {
		t.Errorf("Unexpected order %v", ids)
	}
	tmpl, _ := g.Template("sum-of-sales")
	if tmpl.HasRound2() {
		t.Error("Replaced template should have no round 2")
	}

	if err := g.AddTemplate("bad", Definition{}); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Expected ErrInvalidTemplate, got %v", err)
	}
}
