package annex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/annex-dev/annex-host-sdk/capability"
)

// Config is the YAML host configuration for an Annex.
type Config struct {
	// Directories are the watched plugin directories.
	Directories []string `yaml:"directories"`

	// Instantiate controls instantiate mode; nil means the default (true).
	Instantiate *bool `yaml:"instantiate"`

	// StrictErrors makes per-file load failures propagate.
	StrictErrors bool `yaml:"strict_errors"`
}

// LoadConfig reads an Annex host configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Options translates the configuration into engine options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Instantiate != nil {
		opts = append(opts, WithInstantiate(*c.Instantiate))
	}
	if c.StrictErrors {
		opts = append(opts, WithStrictErrors(true))
	}
	return opts
}

// NewFromConfig builds a registry from a loaded configuration. Explicit
// options override the configuration.
func NewFromConfig(ctx context.Context, base capability.Type, cfg *Config, opts ...Option) (*Annex, error) {
	return New(ctx, base, cfg.Directories, append(cfg.Options(), opts...)...)
}
