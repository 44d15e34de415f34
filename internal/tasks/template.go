// Package tasks turns task templates and seeds into concrete task instances.
package tasks

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/seed"
	"github.com/google/uuid"
)

// DefaultEvaluationURL is used when neither the caller nor the generator
// supplies an evaluation endpoint.
const DefaultEvaluationURL = "http://localhost:5001/api/evaluate"

const (
	placeholderSeed   = "{seed}"
	placeholderResult = "{result}"
)

// RoundSpec is the brief, assertions and attachments for one round.
// Check strings are opaque to taskforge; they are rendered and handed to the
// grading harness, never executed here.
type RoundSpec struct {
	Brief       string              `json:"brief" yaml:"brief" toml:"brief"`
	Checks      []string            `json:"checks" yaml:"checks" toml:"checks"`
	Attachments []models.Attachment `json:"attachments" yaml:"attachments" toml:"attachments"`
}

// Definition describes a template before registration.
type Definition struct {
	Name        string     `json:"name" yaml:"name" toml:"name"`
	Description string     `json:"description" yaml:"description" toml:"description"`
	Round1      RoundSpec  `json:"round1" yaml:"round1" toml:"round1"`
	Round2      *RoundSpec `json:"round2,omitempty" yaml:"round2,omitempty" toml:"round2,omitempty"`
}

// Validate reports whether the definition can be instantiated.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Round1.Brief) == "" {
		return fmt.Errorf("%w: round 1 brief is empty", ErrInvalidTemplate)
	}
	return nil
}

// Template is an immutable, registered task blueprint.
type Template struct {
	id  string
	def Definition
}

// NewTemplate validates def and returns a template that owns a private copy of it.
func NewTemplate(id string, def Definition) (*Template, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: template id is empty", ErrInvalidTemplate)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	cp := Definition{
		Name:        def.Name,
		Description: def.Description,
		Round1:      cloneRound(def.Round1),
	}
	if def.Round2 != nil && strings.TrimSpace(def.Round2.Brief) != "" {
		r2 := cloneRound(*def.Round2)
		cp.Round2 = &r2
	}
	return &Template{id: id, def: cp}, nil
}

func cloneRound(r RoundSpec) RoundSpec {
	return RoundSpec{
		Brief:       r.Brief,
		Checks:      append([]string(nil), r.Checks...),
		Attachments: append([]models.Attachment(nil), r.Attachments...),
	}
}

// ID returns the template identifier.
func (t *Template) ID() string { return t.id }

// Name returns the human-readable template name.
func (t *Template) Name() string { return t.def.Name }

// Description returns the template description.
func (t *Template) Description() string { return t.def.Description }

// HasRound2 reports whether a second round is configured.
func (t *Template) HasRound2() bool { return t.def.Round2 != nil }

// Instantiate binds seed to the template for the given round. Brief, checks
// and attachments are a pure function of (template, seed, round, generatedAt);
// the nonce is fresh on every call. generatedAt is embedded in seeded
// documents and should be the start of the seed's hour bucket.
func (t *Template) Instantiate(seedValue string, round int, evaluationURL string, generatedAt time.Time) (*models.Task, error) {
	var spec RoundSpec
	switch round {
	case 1:
		spec = t.def.Round1
	case 2:
		if t.def.Round2 == nil {
			return nil, fmt.Errorf("%w: %s round 2", ErrRoundNotConfigured, t.id)
		}
		spec = *t.def.Round2
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRound, round)
	}

	// The memo lives for one call only, so every placeholder in this
	// instance sees the same {result}.
	in := &instantiation{tmpl: t, seed: seedValue, fixtures: seed.New(seedValue, generatedAt)}

	checks := make([]string, len(spec.Checks))
	for i, c := range spec.Checks {
		checks[i] = in.render(c)
	}

	attachments, err := in.attachments(spec.Attachments)
	if err != nil {
		return nil, err
	}

	if evaluationURL == "" {
		evaluationURL = DefaultEvaluationURL
	}

	now := time.Now().UTC()
	return &models.Task{
		ID:            TaskID(t.id, seedValue),
		TemplateID:    t.id,
		Round:         round,
		Seed:          seedValue,
		Nonce:         NewNonce(),
		Brief:         in.render(spec.Brief),
		Checks:        checks,
		Attachments:   attachments,
		EvaluationURL: evaluationURL,
		Status:        models.TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TaskID derives the stable task identifier for a template and seed.
func TaskID(templateID, seedValue string) string {
	sum := md5.Sum([]byte(templateID + ":" + seedValue))
	return templateID + "-" + hex.EncodeToString(sum[:])[:5]
}

// NewNonce returns a time-ordered UUIDv7, or a random UUIDv4 if v7
// generation fails.
func NewNonce() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

type instantiation struct {
	tmpl     *Template
	seed     string
	fixtures *seed.Fixtures
	result   *int
}

// resultValue computes {result} once per instantiation. Sales briefs use the
// total of the seeded sales table so the attachment and assertions agree.
func (in *instantiation) resultValue() int {
	if in.result != nil {
		return *in.result
	}
	var v int
	if strings.Contains(strings.ToLower(in.tmpl.def.Round1.Brief), "sales") {
		v = in.fixtures.Tabular().Total
	} else {
		v = in.fixtures.IntRange(1000, 9999)
	}
	in.result = &v
	return v
}

func (in *instantiation) render(s string) string {
	out := strings.ReplaceAll(s, placeholderSeed, seed.Short(in.seed))
	if strings.Contains(out, placeholderResult) {
		out = strings.ReplaceAll(out, placeholderResult, strconv.Itoa(in.resultValue()))
	}
	return out
}

func (in *instantiation) attachments(src []models.Attachment) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(src))
	for _, a := range src {
		if strings.Contains(a.URL, placeholderSeed) {
			url, err := in.dataURL(a.URL)
			if err != nil {
				return nil, fmt.Errorf("attachment %s: %w", a.Name, err)
			}
			a.URL = url
		}
		out = append(out, a)
	}
	return out, nil
}

// dataURL replaces a seeded placeholder URL with an inline payload whose
// encoding follows the declared media type. Unknown types fall back to CSV.
func (in *instantiation) dataURL(raw string) (string, error) {
	mediaType := "text/csv"
	if strings.HasPrefix(raw, "data:") {
		if end := strings.IndexAny(raw, ";,"); end > len("data:") {
			mediaType = raw[len("data:"):end]
		}
	}

	var payload []byte
	switch mediaType {
	case "text/markdown":
		payload = []byte(in.fixtures.Document())
	case "application/json":
		b, err := in.fixtures.RatesJSON()
		if err != nil {
			return "", err
		}
		payload = b
	default:
		mediaType = "text/csv"
		payload = []byte(in.fixtures.Tabular().CSV)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload), nil
}
