package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/audit"
	"github.com/fentz26/taskforge/internal/controlplane"
	"github.com/fentz26/taskforge/internal/ratelimit"
	"github.com/fentz26/taskforge/internal/scheduler"
	"github.com/fentz26/taskforge/internal/store"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the taskforge daemon",
	Long:  `Starts the taskforge daemon which serves the HTTP API and runs the evaluation worker.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting taskforge daemon...")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return err
	}

	// Initialize store
	s, err := store.New(cfg.Database)
	if err != nil {
		return err
	}

	// Initialize components
	pdr := audit.NewPDRWriter(s)
	gen, err := newGenerator(cfg)
	if err != nil {
		s.Close()
		return err
	}
	eval, host, err := newEvaluator(cfg)
	if err != nil {
		s.Close()
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	limiter.Start(cfg.RateLimit.SweepInterval)
	defer limiter.Stop()

	// Create worker and re-queue work interrupted by the last shutdown
	queue := scheduler.NewQueue(cfg.Scheduler.QueueSize)
	worker := scheduler.New(s, eval, queue, pdr, &cfg.Scheduler)
	if n, err := worker.Recover(); err != nil {
		log.Printf("Warning: recovery incomplete: %v", err)
	} else if n > 0 {
		log.Printf("Re-queued %d submissions", n)
	}
	worker.Start()

	// Create service and server
	service := controlplane.NewService(s, pdr, gen, queue,
		controlplane.WithRepoHost(host),
		controlplane.WithRateLimiter(limiter),
	)
	server := controlplane.NewServer(service, cfg.Listen)
	log.Printf("Serving %d templates, evaluation URL %s", len(gen.ListTemplates()), cfg.EvaluationURL)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			worker.Stop()
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// The worker must stop before the store closes.
	log.Println("Stopping evaluation worker...")
	worker.Stop()

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
