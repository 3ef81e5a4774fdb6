package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/killallgit/audiolingu-api/internal/database"
	"github.com/killallgit/audiolingu-api/internal/services/fanout"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enqueue generation jobs in bulk",
	Long: `Enqueue podcast generation jobs without going through the HTTP API.

Jobs are only queued here; a serve or worker process picks them up.`,
}

var batchDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Enqueue the daily batch for every opted-in learner",
	Long: `Enqueue one generation job for each learner with daily episodes enabled.

Learners that already have a pending or running generation job are skipped,
so running the batch twice does not double the work.`,
	Args: cobra.NoArgs,
	RunE: runBatchDaily,
}

var batchUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Enqueue generation jobs for specific learners",
	Args:  cobra.NoArgs,
	RunE:  runBatchUsers,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchDailyCmd)
	batchCmd.AddCommand(batchUsersCmd)

	batchUsersCmd.Flags().UintSlice("id", nil, "learner ids to enqueue (repeatable or comma separated)")
	_ = batchUsersCmd.MarkFlagRequired("id")
}

// newBatchController opens the database and builds only what enqueueing needs
func newBatchController(cmd *cobra.Command) (*fanout.Controller, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Initialize(database.OptionsFromConfig(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.AutoMigrate(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	jobService := jobs.NewService(jobs.NewRepository(db.DB), jobs.WithLogger(log), jobs.WithDefaultMaxRetries(cfg.Fanout.MaxRetries))
	ctrl := fanout.NewController(jobService, profiles.NewService(db.DB), log)
	return ctrl, func() {
		_ = db.Close()
		log.Sync()
	}, nil
}

func runBatchDaily(cmd *cobra.Command, args []string) error {
	ctrl, done, err := newBatchController(cmd)
	if err != nil {
		return err
	}
	defer done()

	result, err := ctrl.EnqueueDaily(cmd.Context())
	if err != nil {
		return err
	}
	return printBatchResult(cmd, result)
}

func runBatchUsers(cmd *cobra.Command, args []string) error {
	ids, _ := cmd.Flags().GetUintSlice("id")
	if len(ids) == 0 {
		return fmt.Errorf("at least one --id is required")
	}
	ctrl, done, err := newBatchController(cmd)
	if err != nil {
		return err
	}
	defer done()

	result, err := ctrl.EnqueueForUsers(cmd.Context(), ids)
	if err != nil {
		return err
	}
	return printBatchResult(cmd, result)
}

func printBatchResult(cmd *cobra.Command, result *fanout.BatchResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
