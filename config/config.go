// Package config loads the application configuration from YAML or JSON with
// optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/deepdist/tabular/core/loss"
	"github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/core/trainer"
)

// Config is the root configuration document.
type Config struct {
	Model    ModelConfig    `json:"model"`
	Loss     loss.Config    `json:"loss"`
	Training trainer.Config `json:"training"`
	Data     DataConfig     `json:"data"`
	Metrics  metrics.Config `json:"metrics"`
	Store    StoreConfig    `json:"store"`
	Logging  LoggingConfig  `json:"logging"`
}

// Load reads the configuration at path. Environment variables prefixed with
// TAB_ override file values, with __ standing in for nesting dots.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("TAB_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tab_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults on every section.
func (c *Config) SetDefaults() {
	c.Model.SetDefaults()
	c.Loss.SetDefaults()
	c.Training.SetDefaults()
	c.Data.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}
