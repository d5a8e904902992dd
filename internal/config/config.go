// Package config loads the service configuration from a YAML file, filling
// in defaults for anything left unset. API keys never live in the file, they
// come from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     Server     `yaml:"server"`
	Chunking   Chunking   `yaml:"chunking"`
	Retrieval  Retrieval  `yaml:"retrieval"`
	Embedding  Embedding  `yaml:"embedding"`
	Completion Completion `yaml:"completion"`
	Retry      Retry      `yaml:"retry"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Chunking struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type Retrieval struct {
	TopK int `yaml:"top_k"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	CacheSize int    `yaml:"cache_size"`
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
}

type Completion struct {
	Model string `yaml:"model"`
}

type Retry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Multiplier  float64  `yaml:"multiplier"`
}

// Duration parses YAML values like "500ms" or "10s". yaml.v3 has no native
// duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML config file, then fills defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 1600
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 240
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 6
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 10000
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Workers == 0 {
		c.Embedding.Workers = 4
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = Duration(500 * time.Millisecond)
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = Duration(10 * time.Second)
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
}
