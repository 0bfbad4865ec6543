package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Download DownloadConfig `yaml:"download"`
	Embed    EmbedConfig    `yaml:"embed"`
	Remux    RemuxConfig    `yaml:"remux"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	SubmitRPS    float64       `yaml:"submit_rps" envconfig:"SERVER_SUBMIT_RPS"`
	SubmitBurst  int           `yaml:"submit_burst" envconfig:"SERVER_SUBMIT_BURST"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	BasePath    string `yaml:"base_path" envconfig:"STORAGE_PATH"`
	TempPath    string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH"`
	MaxFileSize int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL"`
}

// DownloadConfig holds playlist and segment fetch configuration.
type DownloadConfig struct {
	UserAgent     string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	Cookie        string        `yaml:"cookie" envconfig:"COOKIES"`
	Referer       string        `yaml:"referer" envconfig:"REFERER"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	HeaderTimeout time.Duration `yaml:"header_timeout" envconfig:"DOWNLOAD_HEADER_TIMEOUT"`
	Concurrency   int           `yaml:"concurrency" envconfig:"DOWNLOAD_CONCURRENCY"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	FollowMaster  bool          `yaml:"follow_master" envconfig:"DOWNLOAD_FOLLOW_MASTER"`
	VariantPolicy string        `yaml:"variant_policy" envconfig:"DOWNLOAD_VARIANT_POLICY"`
}

// EmbedConfig lists the URL fragments that identify an embed page.
type EmbedConfig struct {
	Patterns []string `yaml:"patterns" envconfig:"EMBED_PATTERNS"`
}

// RemuxConfig controls the optional ffmpeg stream-copy stage.
type RemuxConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"REMUX_ENABLED"`
	FFmpegPath string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	Container  string `yaml:"container" envconfig:"REMUX_CONTAINER"`
}

// EventsConfig configures the job event log.
type EventsConfig struct {
	RingBufferSize int    `yaml:"ring_buffer_size" envconfig:"EVENTS_BUFFER_SIZE"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"EVENTS_SQLITE_PATH"`
	RetentionDays  int    `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Variant selection policies for master playlists.
const (
	VariantHighest = "highest"
	VariantLowest  = "lowest"
)

// DefaultUserAgent is sent when USER_AGENT is not configured.
const DefaultUserAgent = "Mozilla/5.0"

// Load reads configuration from an optional .env file, an optional YAML file
// and environment variables, in that order of increasing precedence.
// Fields left unset by all three receive defaults.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	// godotenv.Load never overrides variables already present in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.Host, "0.0.0.0")
	setDefault(&c.Server.Port, 9847)
	setDefault(&c.Server.ReadTimeout, 30*time.Second)
	setDefault(&c.Server.WriteTimeout, 10*time.Minute)
	setDefault(&c.Server.SubmitRPS, 2)
	setDefault(&c.Server.SubmitBurst, 10)

	setDefault(&c.Storage.BasePath, "/data/artifacts")
	setDefault(&c.Storage.TempPath, os.TempDir())
	setDefault(&c.Storage.MaxFileSize, int64(2<<30)) // 2GB

	setDefault(&c.Worker.Count, 2)
	setDefault(&c.Worker.PollInterval, time.Second)

	setDefault(&c.Download.UserAgent, DefaultUserAgent)
	setDefault(&c.Download.Timeout, 2*time.Minute)
	setDefault(&c.Download.HeaderTimeout, 30*time.Second)
	setDefault(&c.Download.Concurrency, 4)
	setDefault(&c.Download.MaxAttempts, 1)
	setDefault(&c.Download.RetryDelay, 2*time.Second)
	setDefault(&c.Download.MaxRetryDelay, 30*time.Second)
	setDefault(&c.Download.VariantPolicy, VariantHighest)

	if len(c.Embed.Patterns) == 0 {
		c.Embed.Patterns = []string{"anime1u.com/embed/"}
	}

	setDefault(&c.Remux.FFmpegPath, "ffmpeg")
	setDefault(&c.Remux.Container, "mp4")

	setDefault(&c.Events.RingBufferSize, 1000)
	setDefault(&c.Events.RetentionDays, 30)

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "json")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	if c.Download.UserAgent == "" {
		return fmt.Errorf("USER_AGENT is required")
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("DOWNLOAD_CONCURRENCY must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be at least 1, got %d", c.Download.MaxAttempts)
	}
	switch c.Download.VariantPolicy {
	case VariantHighest, VariantLowest:
	default:
		return fmt.Errorf("DOWNLOAD_VARIANT_POLICY must be %q or %q, got %q",
			VariantHighest, VariantLowest, c.Download.VariantPolicy)
	}
	for _, p := range c.Embed.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("EMBED_PATTERNS must not contain empty entries")
		}
	}
	if c.Remux.Enabled && c.Remux.Container == "" {
		return fmt.Errorf("REMUX_CONTAINER is required when remux is enabled")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
