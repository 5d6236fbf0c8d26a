// Package config holds the runtime settings shared by every subcommand.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"

	EnvPrefix = "SHOPFLOOR_"
)

type Config struct {
	Addr      string
	Backend   string
	DBPath    string
	DataDir   string
	IOTimeout time.Duration
	DateField string

	LogLevel  string
	LogFormat string

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	QueueSize      int
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		Backend:        BackendSQLite,
		DBPath:         "./shopfloor.sqlite",
		DataDir:        "./data",
		IOTimeout:      5 * time.Second,
		DateField:      "date",
		LogLevel:       "info",
		LogFormat:      "json",
		WebhookTimeout: 10 * time.Second,
		QueueSize:      256,
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("db-path is required for the sqlite backend"))
		}
	case BackendFile:
		if strings.TrimSpace(c.DataDir) == "" {
			errs = append(errs, errors.New("data-dir is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendFile))
	}
	if c.IOTimeout <= 0 {
		errs = append(errs, errors.New("io-timeout must be positive"))
	}
	if strings.TrimSpace(c.DateField) == "" {
		errs = append(errs, errors.New("date-field must not be empty"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.WebhookSecret != "" && c.WebhookURL == "" {
		errs = append(errs, errors.New("webhook-secret set without webhook-url"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, errors.New("queue-size must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadDotEnv copies KEY=VALUE pairs from path into the process
// environment. Variables that are already set win. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Env returns the environment variable name for a flag.
func Env(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
