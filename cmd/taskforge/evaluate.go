package main

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/evaluator"
	"github.com/fentz26/taskforge/internal/models"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [repo-url]",
	Short: "Grade a repository locally without recording anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

var (
	evalCommit string
	evalPages  string
)

func init() {
	evaluateCmd.Flags().StringVar(&evalCommit, "commit", "", "Commit SHA")
	evaluateCmd.Flags().StringVar(&evalPages, "pages", "", "Published pages URL")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eval, _, err := newEvaluator(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	results := eval.Evaluate(ctx, evaluator.Submission{
		RepoURL:   args[0],
		CommitSHA: evalCommit,
		PagesURL:  evalPages,
	})

	printResults(results)
	passed := lo.CountBy(results, func(r models.CheckResult) bool { return r.Status == models.CheckPassed })
	fmt.Printf("\n%d/%d checks passed in %s\n", passed, len(results), time.Since(start).Round(time.Millisecond))
	return nil
}
