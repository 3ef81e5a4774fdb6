package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/database"
	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/auth"
	"github.com/killallgit/audiolingu-api/internal/services/cache"
	"github.com/killallgit/audiolingu-api/internal/services/cleanup"
	"github.com/killallgit/audiolingu-api/internal/services/email"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/events"
	"github.com/killallgit/audiolingu-api/internal/services/fanout"
	"github.com/killallgit/audiolingu-api/internal/services/generation"
	"github.com/killallgit/audiolingu-api/internal/services/imagegen"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/quizzes"
	"github.com/killallgit/audiolingu-api/internal/services/steps"
	"github.com/killallgit/audiolingu-api/internal/services/storage"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
	"github.com/killallgit/audiolingu-api/internal/services/workers"
	"github.com/killallgit/audiolingu-api/internal/services/workflow"
	"github.com/killallgit/audiolingu-api/internal/temporalx"
	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/download"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

// application holds the wired services shared by serve, worker and batch
type application struct {
	cfg *config.Config
	log *logger.Logger

	db          *database.DB
	store       storage.ObjectStore
	publisher   events.Publisher
	redis       goredis.UniversalClient
	memoryCache *cache.MemoryCache
	cache       cache.Cache
	temporal    temporalsdkclient.Client

	profiles     *profiles.Service
	jobs         jobs.Service
	episodes     *episodes.Service
	quizzes      *quizzes.Service
	controller   *fanout.Controller
	orchestrator *generation.Orchestrator
	runner       workers.PodcastRunner
	checkpoints  *workflow.GormCheckpointStore
	voices       tts.VoiceSearcher
	sender       email.Sender
	feedbackStep *steps.FeedbackAnalysisStep
}

// retryPolicy maps a max_retries setting onto the adapter retry policy
func retryPolicy(maxRetries int) retry.Policy {
	if maxRetries <= 0 {
		return retry.NoRetry()
	}
	p := retry.DefaultPolicy()
	p.MaxAttempts = maxRetries + 1
	return p
}

// newApplication opens the database, migrates it and builds every service.
// The caller must Close the result.
func newApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*application, error) {
	app := &application{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := database.Initialize(database.OptionsFromConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	if err := db.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if app.store, err = storage.New(ctx, cfg.Storage, log); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if app.publisher, err = events.New(ctx, cfg.Redis, log); err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		app.redis = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.cache = cache.NewRedisCache(app.redis, "audiolingu:")
	} else {
		app.memoryCache = cache.NewMemoryCache(int64(cfg.Cache.MaxSizeMB), cfg.Cache.CleanupInterval)
		app.cache = app.memoryCache
	}

	text := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
		Retry:   retryPolicy(cfg.OpenAI.MaxRetries),
	}, log)
	images := imagegen.NewClient(imagegen.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.ImageModel,
		Size:    cfg.OpenAI.ImageSize,
		Timeout: cfg.OpenAI.Timeout,
		Retry:   retryPolicy(cfg.OpenAI.MaxRetries),
	}, log)
	speech := tts.NewClient(tts.Config{
		APIKey:         cfg.ElevenLabs.APIKey,
		BaseURL:        cfg.ElevenLabs.BaseURL,
		DefaultVoiceID: cfg.ElevenLabs.DefaultVoiceID,
		ModelID:        cfg.ElevenLabs.ModelID,
		OutputFormat:   cfg.ElevenLabs.OutputFormat,
		Timeout:        cfg.ElevenLabs.Timeout,
		Retry:          retryPolicy(cfg.ElevenLabs.MaxRetries),
	}, log)
	app.voices = tts.NewCachedVoiceSearcher(speech, app.cache, cfg.ElevenLabs.VoiceCacheTTL)

	if cfg.Email.Enabled {
		app.sender = email.NewClient(email.Config{
			APIKey:  cfg.Email.APIKey,
			BaseURL: cfg.Email.BaseURL,
			From:    cfg.Email.From,
			Timeout: cfg.Email.Timeout,
			Retry:   retryPolicy(cfg.Email.MaxRetries),
		}, log)
	} else {
		app.sender = email.NewNopSender(log)
	}

	app.profiles = profiles.NewService(db.DB)
	app.jobs = jobs.NewService(jobs.NewRepository(db.DB),
		jobs.WithLogger(log),
		jobs.WithDefaultMaxRetries(cfg.Fanout.MaxRetries),
		jobs.WithRetryBase(5*time.Second),
	)
	app.controller = fanout.NewController(app.jobs, app.profiles, log)
	app.episodes = episodes.NewService(episodes.NewRepository(db.DB),
		episodes.WithFeedbackScheduler(app.controller),
		episodes.WithLogger(log),
	)
	app.quizzes = quizzes.NewService(db.DB, app.episodes, steps.NewQuizStep(text), log)
	app.feedbackStep = steps.NewFeedbackAnalysisStep(text)

	storeStep := steps.NewStoreBinaryStep(app.store, download.NewDownloader(download.DefaultOptions()))
	deps := generation.Deps{
		Profiles:    app.profiles,
		Episodes:    app.episodes,
		Script:      steps.NewScriptStep(text, app.profiles, cfg.Workflow.PastSummariesLimit),
		Title:       steps.NewTitleStep(text),
		Summary:     steps.NewSummaryStep(text),
		ImagePrompt: steps.NewImagePromptStep(text),
		Cover:       steps.NewCoverImageStep(images, storeStep),
		Speech:      steps.NewSpeechStep(speech, storeStep),
	}
	app.checkpoints = workflow.NewGormCheckpointStore(db.DB)
	app.orchestrator = generation.NewOrchestrator(deps, app.checkpoints, app.publisher, log)
	app.runner = app.orchestrator

	if cfg.Workflow.Backend == "temporal" {
		if app.temporal, err = temporalx.NewClient(ctx, cfg.Temporal, log); err != nil {
			return nil, err
		}
		app.runner = generation.NewTemporalRunner(app.temporal, cfg.Temporal.TaskQueue, generation.WorkflowOptions{
			StepTimeout: cfg.Temporal.StepTimeout,
		})
	}

	ok = true
	return app, nil
}

// newVerifier builds the token verifier. With skip_auth the returned claims
// are injected on every request and no token is read.
func (a *application) newVerifier(ctx context.Context) (*auth.Service, *auth.Claims, error) {
	ac := auth.Config{
		JWKSURL:  a.cfg.Auth.JWKSURL,
		Secret:   a.cfg.Auth.JWTSecret,
		Issuer:   a.cfg.Auth.Issuer,
		DevToken: a.cfg.Auth.DevToken,
		DevEmail: a.cfg.Auth.DevEmail,
	}
	if !a.cfg.Auth.SkipAuth {
		svc, err := auth.NewService(ctx, ac, a.log)
		return svc, nil, err
	}
	if config.IsProduction() {
		return nil, nil, errors.New("auth.skip_auth cannot be enabled in production")
	}
	if ac.JWKSURL == "" && ac.Secret == "" && ac.DevToken == "" {
		ac.DevToken = uuid.NewString()
	}
	svc, err := auth.NewService(ctx, ac, a.log)
	if err != nil {
		return nil, nil, err
	}
	a.log.Warn("Authentication disabled; every request runs as the dev user", "subject", auth.DevSubject)
	return svc, svc.DevClaims(), nil
}

// dependencies is the handler view of the application
func (a *application) dependencies(verifier types.TokenVerifier, version string) *types.Dependencies {
	return &types.Dependencies{
		DB:            a.db,
		Auth:          verifier,
		Users:         a.profiles,
		Episodes:      a.episodes,
		Quizzes:       a.quizzes,
		JobService:    a.jobs,
		Generation:    a.controller,
		Voices:        a.voices,
		Store:         a.store,
		InternalToken: a.cfg.Internal.Token,
		Version:       version,
		Log:           a.log,
	}
}

// newPools builds the generation, email and background pools
func (a *application) newPools() []*workers.WorkerPool {
	f := a.cfg.Fanout

	generationPool := workers.NewWorkerPool("generation", a.jobs,
		[]models.JobType{models.JobTypePodcastGeneration}, f.GenerationWorkers, f.PollInterval, a.log)
	generationPool.RegisterProcessor(workers.NewGenerationProcessor(a.jobs, a.runner, a.log))

	emailPool := workers.NewWorkerPool("email", a.jobs,
		[]models.JobType{models.JobTypeEmailNotification}, f.EmailWorkers, f.PollInterval, a.log)
	emailPool.RegisterProcessor(workers.NewEmailProcessor(a.jobs, a.profiles, a.episodes, a.sender, a.cfg.Email.AppURL, a.log))

	backgroundPool := workers.NewWorkerPool("background", a.jobs,
		[]models.JobType{models.JobTypeFeedbackAnalysis}, f.BackgroundWorkers, f.PollInterval, a.log)
	backgroundPool.RegisterProcessor(workers.NewFeedbackProcessor(a.jobs, a.profiles, a.feedbackStep, a.cfg.Workflow.FeedbackLimit, a.log))

	return []*workers.WorkerPool{generationPool, emailPool, backgroundPool}
}

// startWorkers starts the pools, the Temporal worker when that backend is
// selected, and the cleanup loop. The returned func stops them.
func (a *application) startWorkers(ctx context.Context) (func(), error) {
	pools := a.newPools()
	var started []*workers.WorkerPool
	stopAll := func() {
		for _, p := range started {
			p.Stop()
		}
	}

	for _, p := range pools {
		if err := p.Start(ctx); err != nil {
			stopAll()
			return nil, err
		}
		started = append(started, p)
	}

	if a.temporal != nil {
		tw, err := temporalx.NewWorker(a.temporal, a.cfg.Temporal.TaskQueue, a.cfg.Fanout.GenerationWorkers, a.orchestrator, a.log)
		if err != nil {
			stopAll()
			return nil, err
		}
		if err := tw.Start(ctx); err != nil {
			stopAll()
			return nil, err
		}
	}

	janitor := cleanup.NewService(a.jobs, a.episodes, a.checkpoints, cleanup.Config{
		Interval:     a.cfg.Workflow.CleanupInterval,
		JobRetention: a.cfg.Workflow.JobRetention,
		StaleAfter:   a.cfg.Workflow.StaleAfter,
	}, a.log)
	janitor.Start(ctx)

	return func() {
		janitor.Stop()
		stopAll()
	}, nil
}

// Close releases connections in reverse order of creation
func (a *application) Close() {
	if a.temporal != nil {
		a.temporal.Close()
	}
	if a.memoryCache != nil {
		a.memoryCache.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis client", "error", err)
		}
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn("Failed to close object store", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
