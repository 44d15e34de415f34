package distribute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/connectors/delivery"
	"github.com/fentz26/taskforge/internal/models"
	"github.com/fentz26/taskforge/internal/store"
	"github.com/fentz26/taskforge/internal/tasks"
)

// Outcome statuses.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomePlanned = "planned"
)

// Deliverer sends a task payload to a student endpoint. *delivery.Client
// satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint string, payload delivery.Payload) (int, error)
}

// Outcome records what happened for one student.
type Outcome struct {
	Identity   string    `json:"identity"`
	Endpoint   string    `json:"endpoint,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Round      int       `json:"round"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Report summarizes one distribution batch.
type Report struct {
	Round    int       `json:"round"`
	DryRun   bool      `json:"dry_run"`
	Total    int       `json:"total"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Outcomes []Outcome `json:"outcomes"`
	Finished time.Time `json:"finished"`
}

// SuccessRate is the share of attempted deliveries that succeeded, in
// percent. Skipped students are not attempts.
func (r *Report) SuccessRate() float64 {
	attempted := r.Sent + r.Failed
	if attempted == 0 {
		return 0
	}
	return float64(r.Sent) / float64(attempted) * 100
}

// Summary renders the report for a terminal.
func (r *Report) Summary() string {
	var b strings.Builder
	title := fmt.Sprintf("Round %d Task Distribution Summary", r.Round)
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(&b, "%s\n%s\n", title, strings.Repeat("=", len(title)))
	fmt.Fprintf(&b, "Students processed: %d\n", r.Total)
	if r.DryRun {
		fmt.Fprintf(&b, "Would send: %d\n", r.Total-r.Skipped)
	} else {
		fmt.Fprintf(&b, "Successfully sent: %d\n", r.Sent)
		fmt.Fprintf(&b, "Failed: %d\n", r.Failed)
		fmt.Fprintf(&b, "Success rate: %.1f%%\n", r.SuccessRate())
	}
	fmt.Fprintf(&b, "Skipped: %d\n", r.Skipped)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Finished.Format(time.RFC3339))
	return b.String()
}

// WriteJSON saves the report to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Options control a batch.
type Options struct {
	// DryRun generates tasks without recording or delivering them.
	DryRun bool
	// Concurrency bounds parallel deliveries. Zero uses the distributor default.
	Concurrency int
}

// Distributor generates tasks and delivers them to students.
type Distributor struct {
	store       *store.Store
	generator   *tasks.Generator
	deliverer   Deliverer
	pdr         *audit.PDRWriter
	concurrency int
}

// New creates a distributor. concurrency bounds parallel deliveries.
func New(st *store.Store, gen *tasks.Generator, d Deliverer, pdr *audit.PDRWriter, concurrency int) *Distributor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Distributor{
		store:       st,
		generator:   gen,
		deliverer:   d,
		pdr:         pdr,
		concurrency: concurrency,
	}
}

// holds reports whether a task counts as issued. Pending and failed tasks
// never reached the student, so a later batch may issue again.
func holds(t models.Task) bool {
	return t.Status != models.TaskStatusPending && t.Status != models.TaskStatusFailed
}

// Round1 issues a round-1 task to every roster entry that does not already
// hold one.
func (d *Distributor) Round1(ctx context.Context, entries []Entry, opts Options) (*Report, error) {
	report := &Report{Round: 1, DryRun: opts.DryRun, Total: len(entries)}
	outcomes := make([]Outcome, len(entries))

	log.Printf("Starting round 1 distribution to %d students", len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit(opts))
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			out, err := d.round1(ctx, entry, opts.DryRun)
			if err != nil {
				return fmt.Errorf("%s: %w", entry.Identity, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return d.finish(report, outcomes), nil
}

func (d *Distributor) round1(ctx context.Context, e Entry, dryRun bool) (Outcome, error) {
	out := Outcome{Identity: e.Identity, Endpoint: e.Endpoint, Round: 1}

	existing, err := d.store.GetStudentByIdentity(e.Identity)
	if err != nil {
		return out, err
	}
	if existing != nil {
		issued, err := d.store.ListTasksByStudent(existing.ID, 1)
		if err != nil {
			return out, err
		}
		if held, ok := lo.Find(issued, holds); ok {
			log.Printf("Student %s already has round 1 task %s, skipping", e.Identity, held.ID)
			out.TaskID = held.ID
			out.Status = OutcomeSkipped
			out.Timestamp = time.Now().UTC()
			return out, nil
		}
	}

	task, err := d.generator.GenerateTask(e.Identity, tasks.GenerateOptions{Round: 1})
	if err != nil {
		return out, err
	}
	out.TaskID = task.ID

	if dryRun {
		out.Status = OutcomePlanned
		out.Timestamp = time.Now().UTC()
		return out, nil
	}

	student, err := d.store.CreateStudent(e.Identity, e.Endpoint, e.Secret, e.GitHubUsername)
	if err != nil {
		return out, err
	}
	return d.deliver(ctx, student, task, out)
}

// EligibleForRound2 returns students whose round-1 submission has been
// received and who do not yet hold a round-2 task, each with the round-1
// task it qualified through.
func (d *Distributor) EligibleForRound2() ([]Candidate, error) {
	students, err := d.store.ListStudents()
	if err != nil {
		return nil, err
	}

	var eligible []Candidate
	for _, st := range students {
		round2, err := d.store.ListTasksByStudent(st.ID, 2)
		if err != nil {
			return nil, err
		}
		if lo.ContainsBy(round2, holds) {
			continue
		}

		round1, err := d.store.ListTasksByStudent(st.ID, 1)
		if err != nil {
			return nil, err
		}
		for _, t := range round1 {
			if !submitted(t.Status) {
				continue
			}
			repo, err := d.store.LatestRepository(t.ID, t.Round)
			if err != nil {
				return nil, err
			}
			if repo != nil {
				eligible = append(eligible, Candidate{Student: st, Round1: t})
				break
			}
		}
	}

	log.Printf("Found %d students eligible for round 2", len(eligible))
	return eligible, nil
}

// Candidate is a student eligible for round 2.
type Candidate struct {
	Student models.Student
	Round1  models.Task
}

func submitted(s models.TaskStatus) bool {
	return s == models.TaskStatusReceived || s == models.TaskStatusEvaluating || s == models.TaskStatusCompleted
}

// Round2 issues the round-2 brief of each eligible student's round-1
// template.
func (d *Distributor) Round2(ctx context.Context, opts Options) (*Report, error) {
	candidates, err := d.EligibleForRound2()
	if err != nil {
		return nil, err
	}

	report := &Report{Round: 2, DryRun: opts.DryRun, Total: len(candidates)}
	outcomes := make([]Outcome, len(candidates))

	log.Printf("Starting round 2 distribution to %d students", len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit(opts))
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			out := Outcome{Identity: c.Student.Identity, Endpoint: c.Student.Endpoint, Round: 2}
			task, err := d.generator.GenerateTask(c.Student.Identity, tasks.GenerateOptions{
				TemplateID: c.Round1.TemplateID,
				Round:      2,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", c.Student.Identity, err)
			}
			out.TaskID = task.ID

			if opts.DryRun {
				out.Status = OutcomePlanned
				out.Timestamp = time.Now().UTC()
				outcomes[i] = out
				return nil
			}

			student := c.Student
			out, err = d.deliver(ctx, &student, task, out)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Student.Identity, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return d.finish(report, outcomes), nil
}

// deliver records task, posts it to the student and stores the delivery
// outcome. Delivery failures are outcomes; only store errors are returned.
func (d *Distributor) deliver(ctx context.Context, student *models.Student, task *models.Task, out Outcome) (Outcome, error) {
	task.StudentID = student.ID
	task.Status = models.TaskStatusPending
	err := d.store.CreateTask(task)
	if errors.Is(err, store.ErrTaskIssued) {
		log.Printf("Task %s for %s was issued concurrently, skipping", task.ID, student.Identity)
		out.Status = OutcomeSkipped
		out.Timestamp = time.Now().UTC()
		return out, nil
	}
	if err != nil {
		return out, err
	}

	code, err := d.deliverer.Deliver(ctx, student.Endpoint, delivery.NewPayload(student, task))
	out.StatusCode = code
	out.Timestamp = time.Now().UTC()

	var deliveryErr string
	switch {
	case err != nil:
		deliveryErr = err.Error()
	case code != 200:
		deliveryErr = fmt.Sprintf("HTTP %d", code)
	}

	if err := d.store.SetDelivery(task.ID, task.Round, code, deliveryErr); err != nil {
		return out, err
	}

	inputs := map[string]interface{}{"identity": student.Identity, "endpoint": student.Endpoint, "round": task.Round}
	if deliveryErr != "" {
		log.Printf("Failed to send task %s to %s: %s", task.ID, student.Identity, deliveryErr)
		out.Status = OutcomeFailed
		out.Error = deliveryErr
		d.pdr.Log(audit.ActionDeliver, inputs, audit.OutcomeFailed, task.ID, deliveryErr)
		return out, nil
	}

	log.Printf("Sent task %s to %s", task.ID, student.Identity)
	out.Status = OutcomeSent
	d.pdr.Log(audit.ActionDeliver, inputs, audit.OutcomeSuccess, task.ID, "")
	return out, nil
}

func (d *Distributor) limit(opts Options) int {
	if opts.Concurrency > 0 {
		return opts.Concurrency
	}
	return d.concurrency
}

func (d *Distributor) finish(report *Report, outcomes []Outcome) *Report {
	report.Outcomes = outcomes
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeSent:
			report.Sent++
		case OutcomeFailed:
			report.Failed++
		case OutcomeSkipped:
			report.Skipped++
		}
	}
	report.Finished = time.Now().UTC()
	log.Printf("Round %d distribution completed: %d/%d sent", report.Round, report.Sent, report.Total)
	return report
}
