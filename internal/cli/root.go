package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/harun/trackd/internal/config"
	"github.com/harun/trackd/internal/daemon"
	"github.com/harun/trackd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trackd",
	Short: "trackd - browsing session tracking and metrics service",
	Long: `trackd records browsing sessions and their actions, aggregates them
into metrics snapshots on a schedule, and serves the latest snapshot
over HTTP and a websocket stream.`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trackd/trackd.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return daemon.Version
}

// loadConfig loads the config file and applies the --log-level flag when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}

// validateConfig reports every validation error at once.
func validateConfig(cfg *config.Config) error {
	errs := config.NewValidator().ValidateConfig(cfg)
	if len(errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, err := range errs {
		msg += "\n  - " + err.Error()
	}
	return fmt.Errorf("%s", msg)
}

// newLogger builds the process logger. Short-lived commands log to stderr so
// stdout carries only command output.
func newLogger(cfg *config.Config, out io.Writer) (*logger.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    out,
	})
}
