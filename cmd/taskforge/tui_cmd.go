package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/config"
	"github.com/fentz26/taskforge/internal/tui"
)

// daemonStartTimeout bounds how long the dashboard waits for a daemon it
// launched itself.
const daemonStartTimeout = 5 * time.Second

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

var noStart bool

func init() {
	tuiCmd.Flags().BoolVar(&noStart, "no-start", false, "Do not start the daemon when it is not running")
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !noStart && !isDaemonRunning(apiAddr) {
		if err := spawnDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	if err := tui.New(apiAddr).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// spawnDaemon starts "taskforge daemon" detached, logging to
// ~/.taskforge/daemon.log, and waits for its health endpoint.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	logPath := filepath.Join(config.Dir(), "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	daemon := exec.Command(exe, "daemon", "--config", configPath)
	daemon.Stdout = logFile
	daemon.Stderr = logFile
	configureDaemonProc(daemon)

	fmt.Printf("Starting taskforge daemon (log: %s)", logPath)
	if err := daemon.Start(); err != nil {
		fmt.Println()
		return err
	}

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if isDaemonRunning(apiAddr) {
			fmt.Println(" ready")
			return nil
		}
		fmt.Print(".")
		time.Sleep(250 * time.Millisecond)
	}
	fmt.Println()
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
