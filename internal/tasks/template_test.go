package tasks

import (
	"encoding/base64"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/seed"
)

var testBucketStart = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func mustBuiltin(t *testing.T, id string) *Template {
	t.Helper()
	g := NewGenerator()
	tmpl, ok := g.Template(id)
	if !ok {
		t.Fatalf("builtin template %s not registered", id)
	}
	return tmpl
}

func TestInstantiate_Idempotent(t *testing.T) {
	tmpl := mustBuiltin(t, "sum-of-sales")
	s := seed.GenerateSeed("alice@example.com", "2024-01-15-09")

	a, err := tmpl.Instantiate(s, 1, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	b, err := tmpl.Instantiate(s, 1, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	if a.ID != b.ID {
		t.Errorf("Expected identical task ids, got %s and %s", a.ID, b.ID)
	}
	if a.Brief != b.Brief {
		t.Errorf("Expected identical briefs")
	}
	if !reflect.DeepEqual(a.Checks, b.Checks) {
		t.Errorf("Expected identical checks")
	}
	if !reflect.DeepEqual(a.Attachments, b.Attachments) {
		t.Errorf("Expected identical attachments")
	}
	if a.Nonce == b.Nonce {
		t.Errorf("Expected distinct nonces, both were %s", a.Nonce)
	}
	if a.EvaluationURL != DefaultEvaluationURL {
		t.Errorf("Expected default evaluation url, got %s", a.EvaluationURL)
	}
}

func TestInstantiate_SeedAndResultSubstitution(t *testing.T) {
	tmpl := mustBuiltin(t, "sum-of-sales")
	s := "0123456789abcdef"

	task, err := tmpl.Instantiate(s, 1, "http://grader/api/evaluate", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if !strings.Contains(task.Brief, `"Sales Summary 01234567"`) {
		t.Errorf("Brief missing substituted seed: %s", task.Brief)
	}
	if task.EvaluationURL != "http://grader/api/evaluate" {
		t.Errorf("Expected explicit evaluation url, got %s", task.EvaluationURL)
	}
	for _, c := range task.Checks {
		if strings.Contains(c, "{seed}") || strings.Contains(c, "{result}") {
			t.Errorf("Unsubstituted placeholder in check %q", c)
		}
	}

	// The numeric target in the assertion must be the CSV total.
	total := seed.New(s, testBucketStart).Tabular().Total
	want := "- " + strconv.Itoa(total) + ")"
	if !strings.Contains(task.Checks[4], want) {
		t.Errorf("Expected check to compare against %d: %s", total, task.Checks[4])
	}

	if len(task.Attachments) != 1 {
		t.Fatalf("Expected 1 attachment, got %d", len(task.Attachments))
	}
	prefix := "data:text/csv;base64,"
	if !strings.HasPrefix(task.Attachments[0].URL, prefix) {
		t.Fatalf("Unexpected attachment url %s", task.Attachments[0].URL)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(task.Attachments[0].URL, prefix))
	if err != nil {
		t.Fatalf("Failed to decode attachment: %v", err)
	}
	if string(decoded) != seed.New(s, testBucketStart).Tabular().CSV {
		t.Errorf("Attachment payload does not match seeded CSV")
	}
}

func TestInstantiate_Round2SharesResult(t *testing.T) {
	tmpl := mustBuiltin(t, "sum-of-sales")
	s := "0123456789abcdef"
	total := strconv.Itoa(seed.New(s, testBucketStart).Tabular().Total)

	task, err := tmpl.Instantiate(s, 2, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate round 2 failed: %v", err)
	}
	if task.Round != 2 {
		t.Errorf("Expected round 2, got %d", task.Round)
	}
	if !strings.Contains(task.Checks[1], "sum - "+total+")") {
		t.Errorf("Round 2 check should use the round 1 total %s: %s", total, task.Checks[1])
	}
}

func TestInstantiate_MarkdownAttachment(t *testing.T) {
	tmpl := mustBuiltin(t, "markdown-to-html")
	s := "fedcba9876543210"

	task, err := tmpl.Instantiate(s, 1, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	prefix := "data:text/markdown;base64,"
	if !strings.HasPrefix(task.Attachments[0].URL, prefix) {
		t.Fatalf("Expected markdown data url, got %s", task.Attachments[0].URL)
	}
	decoded, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(task.Attachments[0].URL, prefix))
	if string(decoded) != seed.New(s, testBucketStart).Document() {
		t.Errorf("Markdown attachment does not match seeded document")
	}
}

func TestInstantiate_JSONAttachment(t *testing.T) {
	tmpl, err := NewTemplate("rates", Definition{
		Round1: RoundSpec{
			Brief:       "Convert {result} USD using rates.json",
			Attachments: []models.Attachment{{Name: "rates.json", URL: "data:application/json;base64,{seed}"}},
		},
	})
	if err != nil {
		t.Fatalf("NewTemplate failed: %v", err)
	}

	task, err := tmpl.Instantiate("0123456789abcdef", 1, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if !strings.HasPrefix(task.Attachments[0].URL, "data:application/json;base64,") {
		t.Errorf("Expected json data url, got %s", task.Attachments[0].URL)
	}

	// Non-sales briefs draw {result} from [1000, 9999].
	fields := strings.Fields(task.Brief)
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1000 || n > 9999 {
		t.Errorf("Expected result in [1000, 9999], got %q", fields[1])
	}
}

func TestInstantiate_Round2NotConfigured(t *testing.T) {
	tmpl, err := NewTemplate("single", Definition{Round1: RoundSpec{Brief: "only one round"}})
	if err != nil {
		t.Fatalf("NewTemplate failed: %v", err)
	}

	_, err = tmpl.Instantiate("0123456789abcdef", 2, "", testBucketStart)
	if !errors.Is(err, ErrRoundNotConfigured) {
		t.Errorf("Expected ErrRoundNotConfigured, got %v", err)
	}
}

func TestInstantiate_InvalidRound(t *testing.T) {
	tmpl := mustBuiltin(t, "sum-of-sales")
	for _, round := range []int{0, 3, -1} {
		if _, err := tmpl.Instantiate("0123456789abcdef", round, "", testBucketStart); !errors.Is(err, ErrInvalidRound) {
			t.Errorf("round %d: expected ErrInvalidRound, got %v", round, err)
		}
	}
}

func TestTaskID(t *testing.T) {
	id := TaskID("sum-of-sales", "0123456789abcdef")
	if !strings.HasPrefix(id, "sum-of-sales-") || len(id) != len("sum-of-sales-")+5 {
		t.Errorf("Unexpected task id %s", id)
	}
	if id != TaskID("sum-of-sales", "0123456789abcdef") {
		t.Error("TaskID is not deterministic")
	}
	if id == TaskID("sum-of-sales", "fedcba9876543210") {
		t.Error("TaskID should depend on the seed")
	}
}

func TestNewTemplate_Invalid(t *testing.T) {
	if _, err := NewTemplate("", Definition{Round1: RoundSpec{Brief: "x"}}); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Expected ErrInvalidTemplate for empty id, got %v", err)
	}
	if _, err := NewTemplate("x", Definition{}); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Expected ErrInvalidTemplate for empty brief, got %v", err)
	}
}

func TestNewTemplate_CopiesDefinition(t *testing.T) {
	def := Definition{Round1: RoundSpec{Brief: "b", Checks: []string{"one"}}}
	tmpl, err := NewTemplate("copy", def)
	if err != nil {
		t.Fatalf("NewTemplate failed: %v", err)
	}
	def.Round1.Checks[0] = "mutated"

	task, err := tmpl.Instantiate("0123456789abcdef", 1, "", testBucketStart)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if task.Checks[0] != "one" {
		t.Errorf("Template should not see caller mutations, got %q", task.Checks[0])
	}
}
