package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Auth         AuthConfig         `mapstructure:"auth"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	ElevenLabs   ElevenLabsConfig   `mapstructure:"elevenlabs"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Email        EmailConfig        `mapstructure:"email"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Temporal     TemporalConfig     `mapstructure:"temporal"`
	Fanout       FanoutConfig       `mapstructure:"fanout"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Cache        CacheConfig        `mapstructure:"cache"`
	RateLimiting RateLimitConfig    `mapstructure:"rate_limiting"`
	Internal     InternalConfig     `mapstructure:"internal"`
	Security     SecurityConfig     `mapstructure:"security"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
}

// DatabaseConfig contains database settings. Driver is sqlite or postgres.
type DatabaseConfig struct {
	Driver                string        `mapstructure:"driver"`
	Path                  string        `mapstructure:"path"`
	DSN                   string        `mapstructure:"dsn"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	Verbose               bool          `mapstructure:"verbose"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// AuthConfig contains token verification settings
type AuthConfig struct {
	JWKSURL   string `mapstructure:"jwks_url"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	DevToken  string `mapstructure:"dev_token"`
	DevEmail  string `mapstructure:"dev_email"`
	SkipAuth  bool   `mapstructure:"skip_auth"`
}

// OpenAIConfig covers both text and image generation
type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	ImageModel string        `mapstructure:"image_model"`
	ImageSize  string        `mapstructure:"image_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ElevenLabsConfig contains text-to-speech settings
type ElevenLabsConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	DefaultVoiceID string        `mapstructure:"default_voice_id"`
	ModelID        string        `mapstructure:"model_id"`
	OutputFormat   string        `mapstructure:"output_format"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	VoiceCacheTTL  time.Duration `mapstructure:"voice_cache_ttl"`
}

// StorageConfig selects and configures the object store backend
type StorageConfig struct {
	Backend string                `mapstructure:"backend"`
	FS      FilesystemStoreConfig `mapstructure:"filesystem"`
	GCS     GCSStoreConfig        `mapstructure:"gcs"`
	S3      S3StoreConfig         `mapstructure:"s3"`
}

type FilesystemStoreConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	BaseURL string `mapstructure:"base_url"`
}

type GCSStoreConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
}

type S3StoreConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Region        string        `mapstructure:"region"`
	Bucket        string        `mapstructure:"bucket"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
}

// EmailConfig contains Resend settings
type EmailConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	From       string        `mapstructure:"from"`
	AppURL     string        `mapstructure:"app_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// WorkflowConfig contains generation run settings. Backend is local or temporal.
type WorkflowConfig struct {
	Backend            string        `mapstructure:"backend"`
	PastSummariesLimit int           `mapstructure:"past_summaries_limit"`
	FeedbackLimit      int           `mapstructure:"feedback_limit"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	JobRetention       time.Duration `mapstructure:"job_retention"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
}

// TemporalConfig contains Temporal client and worker settings
type TemporalConfig struct {
	Address     string        `mapstructure:"address"`
	Namespace   string        `mapstructure:"namespace"`
	TaskQueue   string        `mapstructure:"task_queue"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// FanoutConfig contains worker pool and daily batch settings
type FanoutConfig struct {
	GenerationWorkers int           `mapstructure:"generation_workers"`
	EmailWorkers      int           `mapstructure:"email_workers"`
	BackgroundWorkers int           `mapstructure:"background_workers"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	SchedulerEnabled  bool          `mapstructure:"scheduler_enabled"`
	DailyHour         int           `mapstructure:"daily_hour"`
}

// RedisConfig configures the episode event publisher
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// CacheConfig contains in-memory cache settings
type CacheConfig struct {
	MaxSizeMB       int           `mapstructure:"max_size_mb"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// InternalConfig guards the internal batch trigger
type InternalConfig struct {
	Token string `mapstructure:"token"`
}

// SecurityConfig contains CORS settings
type SecurityConfig struct {
	CORSOrigins []string `mapstructure:"cors_origins"`
	CORSMethods []string `mapstructure:"cors_methods"`
	CORSHeaders []string `mapstructure:"cors_headers"`
}
