package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/trackd/internal/daemon"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/spf13/cobra"
)

var aggregateTimeout int

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one aggregation and print the snapshot",
	Long: `Run the metrics aggregation once against the configured store,
persist and publish the snapshot, and print it as JSON.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().IntVar(&aggregateTimeout, "timeout", 60, "timeout in seconds for the run")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(contextOf(cmd), time.Duration(aggregateTimeout)*time.Second)
	defer cancel()

	backend, err := daemon.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	c, err := daemon.OpenCache(cfg)
	if err != nil {
		return err
	}

	job := analytics.NewJob(backend, backend, c, analytics.JobConfig{
		CacheKey: cfg.Cache.Key,
		Timeout:  cfg.RunTimeout(),
	})

	snap, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
