package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// EnvPrefix is the prefix for environment overrides, e.g. AUDIOLINGU_SERVER_PORT
const EnvPrefix = "AUDIOLINGU"

// Init initializes the configuration system.
// This should be called once at application startup.
func Init() error {
	once.Do(func() {
		setDefaults()

		viper.SetEnvPrefix(EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		if err := viper.ReadInConfig(); err != nil {
			// A missing file means defaults plus environment
			var notFound viper.ConfigFileNotFoundError
			if !os.IsNotExist(err) && !errors.As(err, &notFound) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct.
// Init() must be called before using this.
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func Get(key string) any {
	return viper.Get(key)
}

func GetString(key string) string {
	return viper.GetString(key)
}

func GetInt(key string) int {
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// IsProduction reports whether the environment is production
func IsProduction() bool {
	env := viper.GetString("environment")
	return env == "production" || env == "prod"
}

func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	switch driver := viper.GetString("database.driver"); driver {
	case "sqlite":
	case "postgres":
		if viper.GetString("database.dsn") == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", driver)
	}

	switch backend := viper.GetString("workflow.backend"); backend {
	case "local", "temporal":
	default:
		return fmt.Errorf("unsupported workflow backend: %q", backend)
	}

	switch backend := viper.GetString("storage.backend"); backend {
	case "filesystem", "gcs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend: %q", backend)
	}

	if err := validateSecrets(); err != nil {
		return err
	}

	// Worker counts below one would leave a pool idle forever
	for key, fallback := range map[string]int{
		"fanout.generation_workers": 5,
		"fanout.email_workers":      2,
		"fanout.background_workers": 1,
	} {
		if viper.GetInt(key) <= 0 {
			viper.Set(key, fallback)
		}
	}

	if h := viper.GetInt("fanout.daily_hour"); h < 0 || h > 23 {
		viper.Set("fanout.daily_hour", 6)
	}

	return nil
}

var placeholders = []string{
	"YOUR_KEY_HERE",
	"YOUR_SECRET_HERE",
	"YOUR_API_KEY",
	"changeme",
	"CHANGEME",
	"",
}

func isPlaceholder(v string) bool {
	for _, p := range placeholders {
		if v == p {
			return true
		}
	}
	return false
}

// validateSecrets rejects placeholder credentials in production and warns otherwise
func validateSecrets() error {
	secrets := map[string]string{
		"openai.api_key":     "OpenAI API key",
		"elevenlabs.api_key": "ElevenLabs API key",
		"internal.token":     "internal batch token",
	}
	if viper.GetString("auth.jwks_url") == "" {
		secrets["auth.jwt_secret"] = "JWT secret"
	}
	if viper.GetBool("email.enabled") {
		secrets["email.api_key"] = "Resend API key"
	}

	for key, label := range secrets {
		if !isPlaceholder(viper.GetString(key)) {
			continue
		}
		if IsProduction() {
			return fmt.Errorf("invalid %s: cannot use placeholder values in production", label)
		}
		fmt.Fprintf(os.Stderr, "Warning: %s is using a placeholder value\n", label)
	}
	return nil
}

// Validate validates a Config struct and fills in worker defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres driver")
	}
	if c.Workflow.Backend != "" && c.Workflow.Backend != "local" && c.Workflow.Backend != "temporal" {
		return fmt.Errorf("unsupported workflow backend: %q", c.Workflow.Backend)
	}

	if c.Fanout.GenerationWorkers <= 0 {
		c.Fanout.GenerationWorkers = 5
	}
	if c.Fanout.EmailWorkers <= 0 {
		c.Fanout.EmailWorkers = 2
	}
	if c.Fanout.BackgroundWorkers <= 0 {
		c.Fanout.BackgroundWorkers = 1
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.public_base_url", "http://localhost:8080")

	// Database
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/audiolingu.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.connection_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.verbose", false)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.json", false)

	// Auth
	viper.SetDefault("auth.dev_email", "dev@audiolingu.local")
	viper.SetDefault("auth.skip_auth", false)

	// OpenAI
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.image_model", "gpt-image-1")
	viper.SetDefault("openai.image_size", "1024x1024")
	viper.SetDefault("openai.timeout", 2*time.Minute)
	viper.SetDefault("openai.max_retries", 3)

	// ElevenLabs
	viper.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	viper.SetDefault("elevenlabs.default_voice_id", "KoVIHoyLDrQyd4pGalbs")
	viper.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	viper.SetDefault("elevenlabs.output_format", "mp3_44100_128")
	viper.SetDefault("elevenlabs.timeout", 5*time.Minute)
	viper.SetDefault("elevenlabs.max_retries", 3)
	viper.SetDefault("elevenlabs.voice_cache_ttl", time.Hour)

	// Storage
	viper.SetDefault("storage.backend", "filesystem")
	viper.SetDefault("storage.filesystem.base_dir", "./data/media")
	viper.SetDefault("storage.filesystem.base_url", "http://localhost:8080/media")
	viper.SetDefault("storage.gcs.signed_url_ttl", time.Hour)
	viper.SetDefault("storage.s3.region", "auto")
	viper.SetDefault("storage.s3.use_ssl", true)
	viper.SetDefault("storage.s3.presign_ttl", time.Hour)

	// Email
	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.base_url", "https://api.resend.com")
	viper.SetDefault("email.from", "Audiolingu <hello@audiolingu.app>")
	viper.SetDefault("email.app_url", "http://localhost:3000")
	viper.SetDefault("email.timeout", 30*time.Second)
	viper.SetDefault("email.max_retries", 3)

	// Workflow
	viper.SetDefault("workflow.backend", "local")
	viper.SetDefault("workflow.past_summaries_limit", 10)
	viper.SetDefault("workflow.feedback_limit", 50)
	viper.SetDefault("workflow.stale_after", 2*time.Hour)
	viper.SetDefault("workflow.job_retention", 7*24*time.Hour)
	viper.SetDefault("workflow.cleanup_interval", time.Hour)

	// Temporal
	viper.SetDefault("temporal.address", "localhost:7233")
	viper.SetDefault("temporal.namespace", "default")
	viper.SetDefault("temporal.task_queue", "podcast-generation")
	viper.SetDefault("temporal.step_timeout", 10*time.Minute)

	// Fan-out
	viper.SetDefault("fanout.generation_workers", 5)
	viper.SetDefault("fanout.email_workers", 2)
	viper.SetDefault("fanout.background_workers", 1)
	viper.SetDefault("fanout.poll_interval", 2*time.Second)
	viper.SetDefault("fanout.max_retries", 3)
	viper.SetDefault("fanout.scheduler_enabled", false)
	viper.SetDefault("fanout.daily_hour", 6)

	// Redis
	viper.SetDefault("redis.channel", "episodes.events")

	// Cache
	viper.SetDefault("cache.max_size_mb", 64)
	viper.SetDefault("cache.default_ttl", 10*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 5*time.Minute)

	// Rate limiting
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.rps", 10.0)
	viper.SetDefault("rate_limiting.burst", 20)

	// Security
	viper.SetDefault("security.cors_origins", []string{"*"})
	viper.SetDefault("security.cors_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors_headers", []string{"Content-Type", "Authorization", "X-Internal-Token"})
}
