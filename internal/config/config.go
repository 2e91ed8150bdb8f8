// Package config loads the drey.yml configuration shared by the drey CLI and
// daemons. The file names the Redis deployment and the backplane key schema;
// backplane names left empty disable the corresponding feature path, so only
// an entirely omitted backplane section is filled with defaults.
package config

import (
	"fmt"
	"os"

	"github.com/dyluth/drey/pkg/backplane"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config represents the top-level drey.yml configuration.
type Config struct {
	// RedisURL locates the store, e.g. "redis://localhost:6379/0".
	RedisURL string `yaml:"redis_url"`

	// Source names this process on published change events. Defaults to the
	// hostname when empty.
	Source string `yaml:"source,omitempty"`

	// Backplane names the keys and channels the backplane operates on.
	Backplane backplane.Config `yaml:"backplane"`
}

// DefaultRedisURL is used when drey.yml does not name a Redis deployment and
// no REDIS_URL override is present.
const DefaultRedisURL = "redis://localhost:6379"

// Load reads and validates a drey.yml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills in what the operator omitted. An explicitly present
// backplane section is left alone even when sparse: empty names are how
// feature paths get disabled.
func (c *Config) applyDefaults() {
	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if c.Source == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Source = hostname
		}
	}
	if c.Backplane == (backplane.Config{}) {
		c.Backplane = backplane.DefaultConfig()
	}
	if c.Backplane.JobTTL == 0 && c.Backplane.JobKeyPrefix != "" {
		c.Backplane.JobTTL = backplane.DefaultJobTTL
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid redis_url %q: %w", c.RedisURL, err)
	}
	if c.Backplane.JobTTL < 0 {
		return fmt.Errorf("backplane.job_ttl must be >= 0, got %s", c.Backplane.JobTTL)
	}
	return nil
}

// RedisOptions parses the configured URL into go-redis client options.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url %q: %w", c.RedisURL, err)
	}
	return opts, nil
}
