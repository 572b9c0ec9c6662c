// Package config holds the TeachMe server settings.
//
// Values come from Default, then an optional YAML file named by -config,
// then any command-line flags, which always win.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"TeachMe/internal/backend"
	"TeachMe/internal/session"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// BackendURL is the base URL new sessions start with. Users can change
	// it per session from the UI.
	BackendURL     string        `yaml:"backend_url"`
	QuestionCode   string        `yaml:"question_code"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	Store         string        `yaml:"store"` // memory|sqlite
	StoreDSN      string        `yaml:"store_dsn"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	CookieName    string        `yaml:"cookie_name"`

	PingInterval time.Duration `yaml:"ping_interval"`

	LogDir    string `yaml:"log_dir"`
	LogLevel  string `yaml:"log_level"`
	Debug     bool   `yaml:"debug"`
	Telemetry bool   `yaml:"telemetry"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8501",
		QuestionCode:   backend.DefaultCode,
		BackendTimeout: 60 * time.Second,
		Store:          session.StoreMemory,
		StoreDSN:       session.DefaultSQLiteDSN,
		SessionTTL:     2 * time.Hour,
		SweepInterval:  5 * time.Minute,
		CookieName:     "teachme_session",
		PingInterval:   30 * time.Second,
		LogDir:         "logs",
		LogLevel:       "info",
		Telemetry:      true,
	}
}

// Load builds the configuration from args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("teachme", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "Default backend base URL for new sessions")
	fs.StringVar(&cfg.QuestionCode, "question-code", cfg.QuestionCode, "Static code sent with every question")
	fs.DurationVar(&cfg.BackendTimeout, "backend-timeout", cfg.BackendTimeout, "Timeout for one backend request")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Session store (memory|sqlite)")
	fs.StringVar(&cfg.StoreDSN, "store-dsn", cfg.StoreDSN, "SQLite DSN for the sqlite session store")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Idle time after which a session ends")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often idle sessions are swept")
	fs.StringVar(&cfg.CookieName, "cookie-name", cfg.CookieName, "Name of the session cookie")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "WebSocket ping interval")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log, trace and metric files")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	fs.BoolVar(&cfg.Telemetry, "telemetry", cfg.Telemetry, "Export traces and metrics to the log directory")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := LoadFile(*configPath, cfg); err != nil {
			return nil, err
		}
		// Parse again so flags override the file.
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Store {
	case session.StoreMemory, session.StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, session.StoreMemory, session.StoreSQLite)
	}
	if c.QuestionCode == "" {
		return fmt.Errorf("question code must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.CookieName == "" {
		return fmt.Errorf("cookie name must not be empty")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level; Debug forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
