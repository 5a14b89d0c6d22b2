// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LIBRARY_"

var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration of the library CLI.
type Config struct {
	Storage    Storage    `yaml:"storage" envPrefix:"STORAGE_"`
	Policy     Policy     `yaml:"policy" envPrefix:"POLICY_"`
	Membership Membership `yaml:"membership" envPrefix:"MEMBERSHIP_"`
	Log        Log        `yaml:"log" envPrefix:"LOG_"`
	Telemetry  Telemetry  `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// Storage selects where snapshots are kept.
type Storage struct {
	// Driver is one of file, bolt, postgres, pgx or sqlite3.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Path is the directory (file) or database file (bolt, sqlite3).
	Path string `yaml:"path" env:"PATH"`
	// DSN is the connection string for postgres and pgx.
	DSN string `yaml:"dsn" env:"DSN"`
	// Key names the snapshot inside the store.
	Key string `yaml:"key" env:"KEY"`
}

type Policy struct {
	MaxCheckouts int `yaml:"max_checkouts" env:"MAX_CHECKOUTS"`
	DueDays      int `yaml:"due_days" env:"DUE_DAYS"`
}

// DueInterval converts DueDays into a duration.
func (p Policy) DueInterval() time.Duration {
	return time.Duration(p.DueDays) * 24 * time.Hour
}

type Membership struct {
	// RegistrationsPerMinute of zero disables the limiter.
	RegistrationsPerMinute int `yaml:"registrations_per_minute" env:"REGISTRATIONS_PER_MINUTE"`
	Burst                  int `yaml:"burst" env:"BURST"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// Bridge set to "otel" routes records through the OpenTelemetry log bridge.
	Bridge string `yaml:"bridge" env:"BRIDGE"`
}

type Telemetry struct {
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver: "file",
			Path:   "data",
			Key:    "library",
		},
		Policy: Policy{
			MaxCheckouts: 3,
			DueDays:      7,
		},
		Membership: Membership{
			Burst: 1,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Telemetry: Telemetry{
			ServiceName: "libranexus",
		},
	}
}

// Load reads the YAML file at path, if any, then applies LIBRARY_* environment
// variables on top and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the library cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "file", "bolt", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %s", c.Storage.Driver))
		}
	case "postgres", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		errs = append(errs, errors.New("storage.key must not be empty"))
	}

	if c.Policy.MaxCheckouts <= 0 {
		errs = append(errs, errors.New("policy.max_checkouts must be positive"))
	}
	if c.Policy.DueDays <= 0 {
		errs = append(errs, errors.New("policy.due_days must be positive"))
	}
	if c.Membership.RegistrationsPerMinute < 0 {
		errs = append(errs, errors.New("membership.registrations_per_minute must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Log.Bridge != "" && c.Log.Bridge != "otel" {
		errs = append(errs, fmt.Errorf("unknown log.bridge %q", c.Log.Bridge))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
