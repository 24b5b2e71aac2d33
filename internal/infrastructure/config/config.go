package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Fetch     FetchConfig
	Stage     StageConfig
	Lifecycle LifecycleConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig locates artifacts, staged components and per-environment data.
type StorageConfig struct {
	DownloadsDir string `envconfig:"DOWNLOADS_DIR" default:"./downloads"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data"`
	// Manifest is an optional YAML, TOML or JSON component manifest. Empty
	// selects the built-in catalog.
	Manifest string `envconfig:"COMPONENTS_MANIFEST"`
}

// FetchConfig holds the download retry policy.
type FetchConfig struct {
	MaxAttempts     int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	ConnectTimeout  time.Duration `envconfig:"FETCH_CONNECT_TIMEOUT" default:"30s"`
	ReadTimeout     time.Duration `envconfig:"FETCH_READ_TIMEOUT" default:"30s"`
	TransferTimeout time.Duration `envconfig:"FETCH_TRANSFER_TIMEOUT" default:"30m"`
	BackoffBase     time.Duration `envconfig:"FETCH_BACKOFF_BASE" default:"1s"`
	BackoffMax      time.Duration `envconfig:"FETCH_BACKOFF_MAX" default:"30s"`
	MaxRedirects    int           `envconfig:"FETCH_MAX_REDIRECTS" default:"5"`
}

// StageConfig holds extraction settings.
type StageConfig struct {
	Timeout time.Duration `envconfig:"STAGE_TIMEOUT" default:"10m"`
	// Mode is "tar" (subprocess) or "native" (in-process).
	Mode   string `envconfig:"STAGE_MODE" default:"tar"`
	TarBin string `envconfig:"TAR_BIN" default:"tar"`
}

// LifecycleConfig holds backing process settings.
type LifecycleConfig struct {
	QEMUBin   string        `envconfig:"QEMU_BIN" default:"qemu-system-x86_64"`
	ShellBin  string        `envconfig:"SHELL_BIN" default:"/bin/sh"`
	StopGrace time.Duration `envconfig:"STOP_GRACE" default:"5s"`

	// CodeServerBin overrides the staged code-server entrypoint.
	CodeServerBin  string `envconfig:"CODE_SERVER_BIN"`
	CodeServerHost string `envconfig:"CODE_SERVER_HOST" default:"0.0.0.0"`
	CodeServerPort int    `envconfig:"CODE_SERVER_PORT" default:"8080"`
}

// EventsConfig holds broadcaster settings.
type EventsConfig struct {
	SendTimeout time.Duration `envconfig:"EVENT_SEND_TIMEOUT" default:"1s"`
	Buffer      int           `envconfig:"EVENT_BUFFER" default:"256"`
}

// Load loads configuration from environment variables, after applying an
// optional dotenv file named by ENV_FILE (default ".env").
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "5000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			DownloadsDir: "./downloads",
			DataDir:      "./data",
		},
		Fetch: FetchConfig{
			MaxAttempts:     3,
			ConnectTimeout:  30 * time.Second,
			ReadTimeout:     30 * time.Second,
			TransferTimeout: 30 * time.Minute,
			BackoffBase:     time.Second,
			BackoffMax:      30 * time.Second,
			MaxRedirects:    5,
		},
		Stage: StageConfig{
			Timeout: 10 * time.Minute,
			Mode:    "tar",
			TarBin:  "tar",
		},
		Lifecycle: LifecycleConfig{
			QEMUBin:   "qemu-system-x86_64",
			ShellBin:  "/bin/sh",
			StopGrace: 5 * time.Second,

			CodeServerHost: "0.0.0.0",
			CodeServerPort: 8080,
		},
		Events: EventsConfig{
			SendTimeout: time.Second,
			Buffer:      256,
		},
	}
}

// Validate rejects settings the components cannot honour.
func (c *Config) Validate() error {
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.TransferTimeout <= c.Fetch.ReadTimeout {
		return fmt.Errorf("FETCH_TRANSFER_TIMEOUT (%s) must exceed FETCH_READ_TIMEOUT (%s)",
			c.Fetch.TransferTimeout, c.Fetch.ReadTimeout)
	}
	if c.Stage.Mode != "tar" && c.Stage.Mode != "native" {
		return fmt.Errorf("STAGE_MODE must be tar or native, got %q", c.Stage.Mode)
	}
	if c.Lifecycle.CodeServerPort < 1 || c.Lifecycle.CodeServerPort > 65535 {
		return fmt.Errorf("CODE_SERVER_PORT must be a TCP port, got %d", c.Lifecycle.CodeServerPort)
	}
	if c.Events.Buffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be positive, got %d", c.Events.Buffer)
	}
	return nil
}

func loadDotenv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
