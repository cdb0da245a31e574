package durable

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/durable/pkg/api"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Config selects a storage backend and the engine tunables. It is usually
// loaded from a YAML file:
//
//	backend: sqlite
//	dsn: file:videoflow.db
//	workers: 8
//	eventRetention: 24h
//	logLevel: debug
type Config struct {
	Backend string `yaml:"backend"`

	// DSN is backend specific: a SQLite file name, a PostgreSQL URL,
	// a redis:// URL or a mongodb:// URI.
	DSN string `yaml:"dsn"`

	// Database names the MongoDB database. Defaults to "durable".
	Database string `yaml:"database"`

	Workers               int           `yaml:"workers"`
	ActivityRatePerSecond float64       `yaml:"activityRatePerSecond"`
	ActivityBurst         int           `yaml:"activityBurst"`
	EventRetention        time.Duration `yaml:"eventRetention"`
	MaxGenerations        int           `yaml:"maxGenerations"`
	MaxTaskAttempts       int           `yaml:"maxTaskAttempts"`
	PollInterval          time.Duration `yaml:"pollInterval"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns an in-memory configuration with four workers.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendMemory,
		Workers:  4,
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML configuration file. Missing keys keep the values
// of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be opened.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres, BackendRedis, BackendMongo:
		if c.DSN == "" && c.Backend != BackendSQLite {
			return fmt.Errorf("config: backend %q requires a dsn", c.Backend)
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	if c.Workers < 0 || c.ActivityBurst < 0 || c.MaxGenerations < 0 || c.MaxTaskAttempts < 0 {
		return fmt.Errorf("config: workers, activityBurst, maxGenerations and maxTaskAttempts must not be negative")
	}
	if c.ActivityRatePerSecond < 0 {
		return fmt.Errorf("config: activityRatePerSecond must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Logger builds a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// EngineConfig converts c into the engine configuration. History and Queue
// are left for the backend constructors to fill in.
func (c Config) EngineConfig(logger *slog.Logger, observer api.Observer) EngineConfig {
	return EngineConfig{
		Observer:              observer,
		Logger:                logger,
		Concurrency:           c.Workers,
		ActivityRatePerSecond: c.ActivityRatePerSecond,
		ActivityBurst:         c.ActivityBurst,
		EventRetention:        c.EventRetention,
		MaxGenerations:        c.MaxGenerations,
		MaxTaskAttempts:       c.MaxTaskAttempts,
		PollInterval:          c.PollInterval,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", s)
}
