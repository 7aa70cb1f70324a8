package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/vibe-presenting/server/internal/models"
)

// ServerConfig holds the listener settings
type ServerConfig struct {
	Host           string   `env:"HOST" envDefault:"0.0.0.0"`
	Port           string   `env:"PORT" envDefault:"8787"`
	StaticDir      string   `env:"STATIC_DIR" envDefault:"./dist"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AdminToken     string   `env:"ADMIN_TOKEN"`
}

// TLSConfig holds the optional HTTPS settings
type TLSConfig struct {
	Enabled    bool   `env:"TLS_ENABLED" envDefault:"false"`
	CertFile   string `env:"TLS_CERT_FILE"`
	KeyFile    string `env:"TLS_KEY_FILE"`
	MinVersion string `env:"TLS_MIN_VERSION" envDefault:"1.2"`
}

// StorageConfig selects and configures the persistence backends
type StorageConfig struct {
	Driver         string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath         string `env:"DB_PATH" envDefault:"./data/presentations.db"`
	DataDir        string `env:"DATA_DIR" envDefault:"./data"`
	FeedbackDriver string `env:"FEEDBACK_DRIVER" envDefault:"sqlite"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	Remotes        bool   `env:"REMOTES_ENABLED" envDefault:"true"`
}

// AIConfig configures the OpenAI-compatible inference endpoint
type AIConfig struct {
	BaseURL          string        `env:"AI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	APIKey           string        `env:"AI_API_KEY"`
	Model            string        `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	ImageModel       string        `env:"AI_IMAGE_MODEL" envDefault:"gpt-image-1"`
	TranscribeModel  string        `env:"AI_TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	GeneratorTimeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"90s"`
}

// Enabled reports whether an API key is configured
func (c AIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// RoomConfig holds defaults for newly opened rooms
type RoomConfig struct {
	IdleTimeout       time.Duration `env:"ROOM_IDLE_TIMEOUT" envDefault:"10m"`
	SidebarNavigation bool          `env:"DEFAULT_SIDEBAR_NAVIGATION" envDefault:"true"`
	SpeakerNotes      string        `env:"DEFAULT_SPEAKER_NOTES_VISIBILITY" envDefault:"private"`
}

// Defaults returns the feature toggles for a room that has no saved state
func (c RoomConfig) Defaults() models.Config {
	cfg := models.DefaultConfig()
	cfg.SidebarNavigation = c.SidebarNavigation
	if models.NotesVisibility(c.SpeakerNotes) == models.NotesPublic {
		cfg.SpeakerNotesVisibility = models.NotesPublic
	}
	return cfg
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// SlogLevel maps the configured level name to a slog.Level
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the complete application configuration
type Config struct {
	Server  ServerConfig
	TLS     TLSConfig
	Storage StorageConfig
	AI      AIConfig
	Room    RoomConfig
	Log     LogConfig
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want sqlite or file", c.Storage.Driver)
	}
	switch c.Storage.FeedbackDriver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid FEEDBACK_DRIVER %q: want sqlite or redis", c.Storage.FeedbackDriver)
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("TLS_ENABLED requires TLS_CERT_FILE and TLS_KEY_FILE")
	}
	if c.AI.GeneratorTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be positive")
	}
	return nil
}

// NeedsSQLite reports whether any backend is served by the SQLite database
func (c *Config) NeedsSQLite() bool {
	return c.Storage.Driver == "sqlite" || c.Storage.FeedbackDriver == "sqlite" || c.Storage.Remotes
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// LocalURL returns the URL of path on this host's own listener
func (c *Config) LocalURL(path string) string {
	scheme := "http"
	if c.TLS.Enabled {
		scheme = "https"
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return scheme + "://" + net.JoinHostPort(host, c.Server.Port) + path
}
