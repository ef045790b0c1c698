package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Debug        bool          `json:"debug"`

	// Application paths
	LogDir    string `json:"log_dir"`
	TempDir   string `json:"temp_dir"`
	VideosDir string `json:"videos_dir"`

	// Application version
	Version string `json:"version"`

	// Request and shutdown timeouts
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	CORS      CORSConfig      `json:"cors"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Database  DatabaseConfig  `json:"database"`

	YouTube    YouTubeConfig    `json:"youtube"`
	Transcript TranscriptConfig `json:"transcript"`
	Downloader DownloaderConfig `json:"downloader"`
	AI         AIConfig         `json:"ai"`
	Spaces     SpacesConfig     `json:"spaces"`
	Pipeline   PipelineConfig   `json:"pipeline"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
}

type DatabaseConfig struct {
	Path               string        `json:"path"`
	MaxConnections     int           `json:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
}

// YouTubeConfig covers the metadata fallback chain: the Data API,
// the oEmbed endpoint and the public watch page.
type YouTubeConfig struct {
	APIKey     string        `json:"-"`
	APIBaseURL string        `json:"api_base_url"`
	OEmbedURL  string        `json:"oembed_url"`
	WatchURL   string        `json:"watch_url"`
	Timeout    time.Duration `json:"timeout"`
}

type TranscriptConfig struct {
	IndexURL     string        `json:"index_url"`
	BackupURL    string        `json:"backup_url"`
	TimedTextURL string        `json:"timedtext_url"`
	Languages    []string      `json:"languages"`
	Timeout      time.Duration `json:"timeout"`
}

type DownloaderConfig struct {
	Token        string        `json:"-"`
	BaseURL      string        `json:"base_url"`
	ActorID      string        `json:"actor_id"`
	Quality      string        `json:"quality"`
	QuickWait    time.Duration `json:"quick_wait"`
	PollInterval time.Duration `json:"poll_interval"`
	WatchBudget  time.Duration `json:"watch_budget"`
	YtdlpPath    string        `json:"ytdlp_path"`
	YtdlpTimeout time.Duration `json:"ytdlp_timeout"`
}

type AIConfig struct {
	OpenRouterKey      string        `json:"-"`
	OpenRouterURL      string        `json:"openrouter_url"`
	OpenRouterModel    string        `json:"openrouter_model"`
	AnthropicKey       string        `json:"-"`
	AnthropicURL       string        `json:"anthropic_url"`
	AnthropicModel     string        `json:"anthropic_model"`
	PrimaryTimeout     time.Duration `json:"primary_timeout"`
	SecondaryTimeout   time.Duration `json:"secondary_timeout"`
	MaxTranscriptChars int           `json:"max_transcript_chars"`
}

type SpacesConfig struct {
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
}

func (c SpacesConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// PipelineConfig bounds one course-generation run end to end. The budget is
// deliberately much longer than any single API timeout.
type PipelineConfig struct {
	Budget time.Duration `json:"budget"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		ReadTimeout: getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		// Course generation runs synchronously inside the request, so the
		// write deadline must outlive the pipeline budget.
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 6*time.Minute),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		LogDir:    getEnv("LOG_DIR", "/var/log/ytcourse"),
		TempDir:   getEnv("TEMP_DIR", "/tmp/ytcourse"),
		VideosDir: getEnv("VIDEOS_DIR", "/var/lib/ytcourse/videos"),

		Version: getEnv("VERSION", "1.0.0"),

		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "OPTIONS"},
			),
			AllowedHeaders:   getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},

		Database: DatabaseConfig{
			Path:               getEnv("DB_PATH", "/var/lib/ytcourse/data.db"),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		YouTube: YouTubeConfig{
			APIKey:     getEnv("YOUTUBE_API_KEY", ""),
			APIBaseURL: getEnv("YOUTUBE_API_BASE_URL", "https://www.googleapis.com/youtube/v3"),
			OEmbedURL:  getEnv("YOUTUBE_OEMBED_URL", "https://www.youtube.com/oembed"),
			WatchURL:   getEnv("YOUTUBE_WATCH_URL", "https://www.youtube.com/watch"),
			Timeout:    getEnvAsDuration("YOUTUBE_TIMEOUT", 30*time.Second),
		},

		Transcript: TranscriptConfig{
			IndexURL:     getEnv("TRANSCRIPT_INDEX_URL", "https://api.captionindex.dev/v1/transcripts"),
			BackupURL:    getEnv("TRANSCRIPT_BACKUP_URL", "https://youtubetranscript.com/api/transcript"),
			TimedTextURL: getEnv("TRANSCRIPT_TIMEDTEXT_URL", "https://video.google.com/timedtext"),
			Languages:    getEnvAsStringSlice("TRANSCRIPT_LANGUAGES", []string{"en", "en-US", "en-GB", ""}),
			Timeout:      getEnvAsDuration("TRANSCRIPT_TIMEOUT", 20*time.Second),
		},

		Downloader: DownloaderConfig{
			Token:        getEnv("DOWNLOAD_ACTOR_TOKEN", ""),
			BaseURL:      getEnv("DOWNLOAD_ACTOR_BASE_URL", "https://api.apify.com"),
			ActorID:      getEnv("DOWNLOAD_ACTOR_ID", "scrapearchitect~youtube-video-downloader"),
			Quality:      getEnv("DOWNLOAD_QUALITY", "720p"),
			QuickWait:    getEnvAsDuration("DOWNLOAD_QUICK_WAIT", 5*time.Second),
			PollInterval: getEnvAsDuration("DOWNLOAD_POLL_INTERVAL", 10*time.Second),
			WatchBudget:  getEnvAsDuration("DOWNLOAD_WATCH_BUDGET", 15*time.Minute),
			YtdlpPath:    getEnv("YTDLP_PATH", "yt-dlp"),
			YtdlpTimeout: getEnvAsDuration("YTDLP_TIMEOUT", 5*time.Minute),
		},

		AI: AIConfig{
			OpenRouterKey:      getEnv("OPENROUTER_KEY", ""),
			OpenRouterURL:      getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),
			OpenRouterModel:    getEnv("OPENROUTER_MODEL", "openai/gpt-4"),
			AnthropicKey:       getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicURL:       getEnv("ANTHROPIC_URL", "https://api.anthropic.com/v1/messages"),
			AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			PrimaryTimeout:     getEnvAsDuration("AI_PRIMARY_TIMEOUT", 10*time.Second),
			SecondaryTimeout:   getEnvAsDuration("AI_SECONDARY_TIMEOUT", 15*time.Second),
			MaxTranscriptChars: getEnvAsInt("AI_MAX_TRANSCRIPT_CHARS", 8000),
		},

		Spaces: SpacesConfig{
			AccessKey: getEnv("SPACES_ACCESS_KEY", ""),
			SecretKey: getEnv("SPACES_SECRET_KEY", ""),
			Region:    getEnv("SPACES_REGION", "nyc3"),
			Endpoint:  getEnv("SPACES_ENDPOINT", ""),
			Bucket:    getEnv("SPACES_BUCKET", ""),
		},

		Pipeline: PipelineConfig{
			Budget: getEnvAsDuration("PIPELINE_BUDGET", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}
	if err := validateTimeouts(c); err != nil {
		return err
	}
	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{c.TempDir, "temp directory"},
		{c.VideosDir, "videos directory"},
		{filepath.Dir(c.Database.Path), "database directory"},
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Pipeline.Budget <= 0 {
		return fmt.Errorf("pipeline budget must be positive")
	}
	if c.Pipeline.Budget >= c.RequestTimeout {
		return fmt.Errorf("pipeline budget must be shorter than the request timeout")
	}
	if c.Pipeline.Budget >= c.WriteTimeout {
		return fmt.Errorf("pipeline budget must be shorter than the write timeout")
	}
	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			return strings.Split(value, ",")
		}
	}
	return defaultValue
}
