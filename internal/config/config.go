package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mealie-backup/config.yaml",
}

// Config holds the application configuration.
type Config struct {
	APIURL               string `koanf:"api_url" validate:"required,url"`
	APIKey               string `koanf:"api_key" validate:"required"`
	MaxServerBackups     int    `koanf:"max_server_backups" validate:"required,min=1"`
	MaxLocalBackups      int    `koanf:"max_local_backups" validate:"required,min=1"`
	LocalBackupsLocation string `koanf:"local_backups_location" validate:"required,dir"`

	LogLocation string `koanf:"log_location"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	AcceptLanguage string        `koanf:"accept_language"`
	HTTPTimeout    time.Duration `koanf:"http_timeout" validate:"min=0"`

	Schedule     string `koanf:"schedule"` // Standard cron expression; empty runs once
	RunOnStart   bool   `koanf:"run_on_start"`
	DatabasePath string `koanf:"database_path"`
	StatusHost   string `koanf:"status_host"`
	StatusPort   int    `koanf:"status_port" validate:"min=0,max=65535"`
}

func defaultConfig() Config {
	return Config{
		LogLocation:    "logs",
		LogLevel:       "info",
		AcceptLanguage: "en-US",
		RunOnStart:     true,
		DatabasePath:   "./mealie-backup.db",
		StatusHost:     "127.0.0.1",
	}
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// API_URL -> api_url
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields, ranges and the cron expression.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	// Every regular file in the backup directory is subject to local pruning.
	if c.DatabasePath != ":memory:" && sameDir(filepath.Dir(c.DatabasePath), c.LocalBackupsLocation) {
		return fmt.Errorf("database_path %q must not be inside local_backups_location", c.DatabasePath)
	}
	if c.LogLocation != "" && sameDir(c.LogLocation, c.LocalBackupsLocation) {
		return fmt.Errorf("log_location %q must not be local_backups_location", c.LogLocation)
	}
	return nil
}

// StatusAddr is the listen address of the status server.
func (c *Config) StatusAddr() string {
	return net.JoinHostPort(c.StatusHost, strconv.Itoa(c.StatusPort))
}

// Daemon reports whether the process should keep running on a schedule.
func (c *Config) Daemon() bool {
	return c.Schedule != ""
}

func sameDir(a, b string) bool {
	return resolveDir(a) == resolveDir(b)
}

func resolveDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func findConfigFile() string {
	if path, ok := os.LookupEnv(ConfigPathEnvVar); ok && path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
