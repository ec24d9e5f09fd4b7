package cli

import (
	"errors"
	"fmt"

	"github.com/harun/trackd/internal/config"
	"github.com/harun/trackd/pkg/storage/sqlite"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the SQLite schema",
	Long:      `Apply (up) or roll back (down) the embedded SQLite schema migrations.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.StorageSQLite {
		return fmt.Errorf("migrate requires the sqlite storage driver, configured: %s", cfg.Storage.Driver)
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	store, err := sqlite.Open(contextOf(cmd), sqlite.Config{
		Path:           cfg.Storage.SQLite.Path,
		SkipMigrations: true,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if err := store.Migrate(args[0]); err != nil {
		if errors.Is(err, sqlite.ErrNoChange) {
			fmt.Fprintln(out, "Schema already up to date")
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "Migrated %s: %s\n", args[0], cfg.Storage.SQLite.Path)
	return nil
}
