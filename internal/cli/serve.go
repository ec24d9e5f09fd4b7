package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harun/trackd/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trackd service in the foreground",
	Long: `Run the trackd service in the foreground.
Serves the HTTP API and runs the aggregation schedule until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	pidFile := filepath.Join(cfg.DataDir, daemon.PIDFileName)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		_ = d.Close()
		return err
	}

	d.Wait(cmd.Context())
	return nil
}

func getPIDFilePath() string {
	cfg, err := loadConfig(rootCmd)
	if err != nil || cfg.DataDir == "" {
		return filepath.Join(os.TempDir(), daemon.PIDFileName)
	}
	return filepath.Join(cfg.DataDir, daemon.PIDFileName)
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPIDFile(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
