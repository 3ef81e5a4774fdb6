package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiolingu-api",
	Short: "Audiolingu API server",
	Long: `Audiolingu API - personalized language-learning podcasts

Each learner gets short episodes in their target language, written for their
level and interests, narrated, illustrated and aligned word by word.

Features:
  • Podcast generation runs with per-step checkpoints (local or Temporal)
  • Daily batch fan-out across opted-in learners
  • Word and sentence timings for synchronized transcripts
  • Listening progress, episode feedback and comprehension quizzes
  • Email notifications when an episode is ready`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides logging.level")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// loadConfig reads settings.yaml and the environment. Only commands that
// touch the database or the network call it.
func loadConfig() (*config.Config, error) {
	if err := config.Init(); err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger, letting flags override the config
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	level := cfg.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	json := cfg.Logging.JSON
	if cmd.Flags().Changed("json-logs") {
		json, _ = cmd.Flags().GetBool("json-logs")
	}
	return logger.New(level, json)
}
