// Package config loads the server configuration from YAML with environment
// overrides. Every field has a working default, so an empty config starts a
// usable server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Partition PartitionConfig `yaml:"partition"`
	Archive   ArchiveConfig   `yaml:"archive"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" validate:"min=1024"`
	WebhookURL      string        `yaml:"webhook_url" validate:"omitempty,url"`
}

// AnalysisConfig controls the analysis pipeline.
type AnalysisConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=256"`
}

// PartitionConfig controls the optimizer backend chain.
type PartitionConfig struct {
	RemoteURL string        `yaml:"remote_url" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout"`
	Seed      int64         `yaml:"seed"`
}

// ArchiveConfig controls run-report archiving. Both sinks are optional.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	PostgresURL string `yaml:"postgres_url"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  64 << 20,
		},
		Analysis: AnalysisConfig{
			Workers: 4,
		},
		Partition: PartitionConfig{
			Timeout: 30 * time.Second,
			Seed:    1,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path, layers environment overrides on top of
// the defaults, and validates the result. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}
	return cfg, nil
}

// applyEnv layers MULEWATCH_* environment variables over the loaded values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MULEWATCH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MULEWATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MULEWATCH_WEBHOOK_URL"); v != "" {
		cfg.Server.WebhookURL = v
	}
	if v := os.Getenv("MULEWATCH_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Workers = workers
		}
	}
	if v := os.Getenv("MULEWATCH_OPTIMIZER_URL"); v != "" {
		cfg.Partition.RemoteURL = v
	}
	if v := os.Getenv("MULEWATCH_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	if v := os.Getenv("MULEWATCH_POSTGRES_URL"); v != "" {
		cfg.Archive.PostgresURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// formatValidationError rewrites validator errors into field-level messages.
func formatValidationError(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}

	msgs := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s validation (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
