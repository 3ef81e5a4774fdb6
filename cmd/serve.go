package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/killallgit/audiolingu-api/api"
	authapi "github.com/killallgit/audiolingu-api/api/auth"
	"github.com/killallgit/audiolingu-api/api/middleware"
	"github.com/killallgit/audiolingu-api/internal/services/fanout"
	"github.com/killallgit/audiolingu-api/internal/services/storage"
	"github.com/killallgit/audiolingu-api/pkg/config"
)

var (
	serverHost string
	serverPort int
	noWorkers  bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Audiolingu API server with the configured settings.

Unless --no-workers is given the same process also runs the job worker
pools, the cleanup loop and, when enabled, the daily batch scheduler.

Example:
  audiolingu-api serve
  audiolingu-api serve --port 9090
  audiolingu-api serve --host 0.0.0.0 --port 8080 --no-workers`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
	serveCmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve HTTP only; run workers with the worker command")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if serverHost == "" {
		serverHost = cfg.Server.Host
	}
	if serverPort == 0 {
		serverPort = cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	verifier, skipClaims, err := app.newVerifier(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	var authOpts []authapi.HandlerOption
	if skipClaims != nil {
		authOpts = append(authOpts, authapi.WithSkipAuth(skipClaims))
	}

	address := fmt.Sprintf("%s:%d", serverHost, serverPort)
	server := api.NewServer(address, cfg.Server)
	server.SetDependencies(app.dependencies(verifier, Version))
	server.SetSecurity(cfg.Security)

	routeOpts := api.RouteOptions{
		Auth:      authapi.NewHandler(verifier, app.profiles, log, authOpts...),
		RateLimit: cfg.RateLimiting,
		QuizCache: middleware.CacheConfig{
			Cache:      app.cache,
			DefaultTTL: cfg.Cache.DefaultTTL,
			Enabled:    true,
		},
	}
	if fs, ok := app.store.(*storage.FilesystemStore); ok {
		routeOpts.MediaRoute = mediaRoute(cfg.Storage.FS.BaseURL)
		routeOpts.MediaDir = fs.BasePath()
	}
	server.SetRouteOptions(routeOpts)

	if err := server.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if !noWorkers {
		stopWorkers, err := app.startWorkers(ctx)
		if err != nil {
			return err
		}
		defer stopWorkers()

		if cfg.Fanout.SchedulerEnabled {
			scheduler := fanout.NewScheduler(app.controller, cfg.Fanout.DailyHour, log)
			scheduler.Start(ctx)
			defer scheduler.Stop()
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting Audiolingu API server", "address", address, "workflow", cfg.Workflow.Backend, "workers", !noWorkers)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err := <-serverErr:
		log.Error("Server stopped unexpectedly", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		return err
	}

	log.Info("Server gracefully stopped")
	return nil
}

// mediaRoute is the path part of the filesystem store's public base URL
func mediaRoute(baseURL string) string {
	route := "/media"
	if u, err := url.Parse(baseURL); err == nil && strings.Trim(u.Path, "/") != "" {
		route = "/" + strings.Trim(u.Path, "/")
	}
	return route
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
