package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/killallgit/audiolingu-api/internal/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage database migrations for the Audiolingu API.

The schema is derived from the application models. serve, worker and batch
migrate on startup; use this command to migrate ahead of a deploy or to see
which tables are missing.

Available subcommands:
  up      - Create missing tables and columns
  status  - Show tables that do not exist yet`,
}

// migrateUpCmd applies pending migrations
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long: `Apply all pending database migrations.

Missing tables, columns and indexes are created. Existing data is never
dropped.`,
	RunE: runMigrateUp,
}

// migrateStatusCmd shows migration status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the current status of database migrations.

Lists every model table that does not exist in the configured database.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
}

func openDatabase() (*database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Initialize(database.OptionsFromConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "Dry run mode - no changes will be made")
		return printPending(cmd, db)
	}

	if err := db.AutoMigrate(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrations applied")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Database Migration Status")
	fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("=", 50))
	return printPending(cmd, db)
}

func printPending(cmd *cobra.Command, db *database.DB) error {
	pending, err := db.PendingTables()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	fmt.Fprintf(out, "Pending tables (%d):\n", len(pending))
	for _, t := range pending {
		fmt.Fprintf(out, "  %s\n", t)
	}
	return nil
}
