package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/config"
	"github.com/fentz26/taskforge/internal/connectors/delivery"
	"github.com/fentz26/taskforge/internal/distribute"
	"github.com/fentz26/taskforge/internal/store"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Deliver tasks to student endpoints in batches",
}

var distributeRound1Cmd = &cobra.Command{
	Use:   "round1",
	Short: "Generate and deliver round-1 tasks to every student in a roster",
	RunE:  runDistributeRound1,
}

var distributeRound2Cmd = &cobra.Command{
	Use:   "round2",
	Short: "Deliver round-2 tasks to students who submitted round 1",
	RunE:  runDistributeRound2,
}

var (
	rosterPath  string
	dryRun      bool
	concurrency int
	reportPath  string
)

func init() {
	distributeCmd.AddCommand(distributeRound1Cmd, distributeRound2Cmd)

	distributeRound1Cmd.Flags().StringVar(&rosterPath, "roster", "", "CSV roster with identity, endpoint and secret columns (required)")
	distributeRound1Cmd.MarkFlagRequired("roster")

	for _, c := range []*cobra.Command{distributeRound1Cmd, distributeRound2Cmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "Generate tasks without recording or delivering them")
		c.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel deliveries (default from config)")
		c.Flags().StringVar(&reportPath, "report", "", "Write the JSON report to this path")
	}
}

// newDistributor opens the store directly; the daemon need not be running.
func newDistributor() (*distribute.Distributor, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, nil, err
	}
	s, err := store.New(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	d := delivery.New(cfg.Delivery.Timeout, cfg.Delivery.UserAgent)
	return distribute.New(s, gen, d, audit.NewPDRWriter(s), deliveryConcurrency(cfg)), s, nil
}

func deliveryConcurrency(cfg *config.Config) int {
	if concurrency > 0 {
		return concurrency
	}
	return cfg.Delivery.Concurrency
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runDistributeRound1(cmd *cobra.Command, args []string) error {
	entries, err := distribute.LoadRoster(rosterPath)
	if err != nil {
		return err
	}

	d, s, err := newDistributor()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := d.Round1(ctx, entries, distribute.Options{DryRun: dryRun})
	if err != nil {
		return err
	}
	return finishReport(report)
}

func runDistributeRound2(cmd *cobra.Command, args []string) error {
	d, s, err := newDistributor()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := d.Round2(ctx, distribute.Options{DryRun: dryRun})
	if err != nil {
		return err
	}
	return finishReport(report)
}

func finishReport(report *distribute.Report) error {
	fmt.Print(report.Summary())
	if reportPath != "" {
		if err := report.WriteJSON(reportPath); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", reportPath)
	}
	return nil
}
