package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/killallgit/audiolingu-api/internal/services/fanout"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job workers without the HTTP server",
	Long: `Run the generation, email and background worker pools.

Use this to scale job processing separately from the API. Workers claim jobs
from the shared database, so any number of worker processes can run at once.
The daily scheduler runs here only with --scheduler; run it in one process.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Bool("scheduler", false, "also run the daily batch scheduler")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	stopWorkers, err := app.startWorkers(ctx)
	if err != nil {
		return err
	}
	defer stopWorkers()

	if withScheduler, _ := cmd.Flags().GetBool("scheduler"); withScheduler {
		scheduler := fanout.NewScheduler(app.controller, cfg.Fanout.DailyHour, log)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	log.Info("Workers running", "workflow", cfg.Workflow.Backend,
		"generation", cfg.Fanout.GenerationWorkers, "email", cfg.Fanout.EmailWorkers, "background", cfg.Fanout.BackgroundWorkers)
	<-ctx.Done()
	log.Info("Stopping workers")
	return nil
}
