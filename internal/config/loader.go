package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names and prefixes.
const (
	EnvPrefix  = "TEXTGUARD_"
	EnvConfig  = "TEXTGUARD_CONFIG"
	EnvDotFile = "TEXTGUARD_ENV_FILE"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TEXTGUARD_CONFIG is set
//  3. env (prefix TEXTGUARD_), including values from a .env file
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TEXTGUARD_MAX_UPLOAD_BYTES -> max_upload_bytes. Underscores are kept to
	// match the flat koanf tags; list values are comma-separated.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if key == "config" || key == "env_file" {
			return "", nil
		}
		if key == "cors_origins" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ModelSnapshot) == "":
		return fmt.Errorf("%w: model_snapshot must not be empty", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	return nil
}

// loadDotEnv reads TEXTGUARD_ENV_FILE (or ./.env) into the process
// environment without overriding variables that are already set.
func loadDotEnv() error {
	path := os.Getenv(EnvDotFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
