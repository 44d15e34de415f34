package tasks

import (
	"crypto/md5"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/seed"
)

// Generator is the template registry. It is safe for concurrent use.
type Generator struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string

	evaluationURL string
	now           func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source used to pick the seed bucket.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEvaluationURL sets the default evaluation endpoint for new tasks.
func WithEvaluationURL(url string) Option {
	return func(g *Generator) { g.evaluationURL = url }
}

// NewGenerator creates a generator pre-populated with the built-in templates.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		templates:     make(map[string]*Template),
		evaluationURL: DefaultEvaluationURL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, b := range builtins {
		if err := g.AddTemplate(b.id, b.def); err != nil {
			panic(fmt.Sprintf("builtin template %s: %v", b.id, err))
		}
	}
	return g
}

// AddTemplate registers def under id. Re-registering an id replaces the
// definition but keeps its position in the selection order.
func (g *Generator) AddTemplate(id string, def Definition) error {
	t, err := NewTemplate(id, def)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.templates[id]; !exists {
		g.order = append(g.order, id)
	}
	g.templates[id] = t
	return nil
}

// Template returns a registered template.
func (g *Generator) Template(id string) (*Template, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.templates[id]
	return t, ok
}

// ListTemplates returns template ids in selection order.
func (g *Generator) ListTemplates() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// GenerateOptions selects what GenerateTask produces. Zero values mean
// "pick by identity", round 1 and the generator's evaluation URL.
type GenerateOptions struct {
	TemplateID    string
	Round         int
	EvaluationURL string
}

// GenerateTask creates a task for identity in the current UTC hour bucket.
func (g *Generator) GenerateTask(identity string, opts GenerateOptions) (*models.Task, error) {
	return g.GenerateForBucket(identity, seed.Bucket(g.now()), opts)
}

// GenerateForBucket creates a task for identity in an explicit hour bucket.
func (g *Generator) GenerateForBucket(identity, bucket string, opts GenerateOptions) (*models.Task, error) {
	start, err := seed.BucketStart(bucket)
	if err != nil {
		return nil, fmt.Errorf("parse bucket %q: %w", bucket, err)
	}
	seedValue := seed.GenerateSeed(identity, bucket)

	templateID := opts.TemplateID
	if templateID == "" {
		templateID, err = g.SelectTemplate(identity)
		if err != nil {
			return nil, err
		}
	}

	t, ok := g.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}

	round := opts.Round
	if round == 0 {
		round = 1
	}
	evalURL := opts.EvaluationURL
	if evalURL == "" {
		evalURL = g.evaluationURL
	}

	task, err := t.Instantiate(seedValue, round, evalURL, start)
	if err != nil {
		return nil, err
	}
	task.Identity = identity

	log.Printf("Generated task %s for %s using template %s", task.ID, identity, templateID)
	return task, nil
}

// SelectTemplate picks a template id from md5(identity) modulo the number
// of registered templates.
func (g *Generator) SelectTemplate(identity string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.order) == 0 {
		return "", ErrNoTemplates
	}
	sum := md5.Sum([]byte(identity))
	idx := new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), big.NewInt(int64(len(g.order))))
	return g.order[idx.Int64()], nil
}
