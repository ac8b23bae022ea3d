// Package config loads process configuration: an optional YAML file, then DUEL_*
// environment variables on top.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/duel/go/internal/dbconfig"
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/bus"
	"github.com/mcdev12/duel/go/internal/match/gateway"
	"github.com/mcdev12/duel/go/internal/match/history"
)

const EnvPrefix = "DUEL_"

// HistoryDisabled turns the match ledger off.
const HistoryDisabled = "none"

type Config struct {
	LogLevel string         `yaml:"log_level" env:"LOG_LEVEL"`
	Rules    match.Rules    `yaml:"rules" envPrefix:"RULES_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Gateway  gateway.Config `yaml:"gateway" envPrefix:"GATEWAY_"`
	NATS     NATSConfig     `yaml:"nats" envPrefix:"NATS_"`
	History  HistoryConfig  `yaml:"history" envPrefix:"HISTORY_"`
}

type HTTPConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// NATSConfig is off unless JetStream.URL is set.
type NATSConfig struct {
	JetStream bus.JetStreamConfig `yaml:"jetstream"`
	Outbox    bus.Config          `yaml:"outbox"`
}

type HistoryConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	Path      string `yaml:"path" env:"PATH"`
	DSN       string `yaml:"dsn" env:"DSN"`
	QueueSize int    `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// Enabled reports whether finalized matches are recorded.
func (h HistoryConfig) Enabled() bool {
	return h.Driver != HistoryDisabled
}

// DataSource returns the DSN to open the history store with. Postgres falls back to the
// DB_* variables when no DSN is configured.
func (h HistoryConfig) DataSource(dialect history.Dialect) (string, error) {
	if dialect == history.DialectSQLite {
		return h.Path, nil
	}
	if h.DSN != "" {
		return h.DSN, nil
	}
	db, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return "", err
	}
	return db.DSN(), nil
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Rules:    match.DefaultRules(),
		HTTP:     HTTPConfig{Port: 8090},
		Gateway:  gateway.DefaultConfig(),
		NATS: NATSConfig{
			JetStream: bus.DefaultJetStreamConfig(),
			Outbox:    bus.DefaultConfig(),
		},
		History: HistoryConfig{
			Driver:    string(history.DialectSQLite),
			Path:      "duel.db",
			QueueSize: 256,
		},
	}
}

// Load starts from Default, applies the YAML file at path if path is not empty, then the
// environment overlay.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	r := c.Rules
	if r.MinDuration <= 0 {
		errs = append(errs, fmt.Errorf("rules.min_duration must be positive, got %d", r.MinDuration))
	}
	if r.MaxDuration < r.MinDuration {
		errs = append(errs, fmt.Errorf("rules.max_duration %d is below min_duration %d", r.MaxDuration, r.MinDuration))
	}
	if r.DefaultDuration < r.MinDuration || r.DefaultDuration > r.MaxDuration {
		errs = append(errs, fmt.Errorf("rules.default_duration %d is outside %d-%d", r.DefaultDuration, r.MinDuration, r.MaxDuration))
	}
	if r.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("rules.tick_interval must be positive, got %s", r.TickInterval))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d is out of range", c.HTTP.Port))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if c.History.Enabled() {
		dialect, err := history.ParseDialect(c.History.Driver)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("history.driver: %w", err))
		case dialect == history.DialectSQLite && c.History.Path == "":
			errs = append(errs, errors.New("history.path is required for sqlite"))
		}
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level. Validate has already rejected bad values.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
