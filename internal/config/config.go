// Package config loads tracker configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FeedGroup is one named bundle of routes sharing a real-time feed
// endpoint.
type FeedGroup struct {
	ID     string   `yaml:"id" validate:"required"`
	Name   string   `yaml:"name"`
	Routes []string `yaml:"routes" validate:"required,min=1"`
	URL    string   `yaml:"url" validate:"required,url"`
}

// Config is the full tracker configuration.
type Config struct {
	Port            int         `yaml:"port" validate:"gt=0"`
	StopsPath       string      `yaml:"stopsPath" validate:"required"`
	TripsPath       string      `yaml:"tripsPath" validate:"required"`
	CacheTTLSeconds int         `yaml:"cacheTTLSeconds" validate:"gte=0"`
	FetchTimeoutMS  int         `yaml:"fetchTimeoutMS" validate:"gte=0"`
	APIKey          string      `yaml:"apiKey"`
	FeedGroups      []FeedGroup `yaml:"feedGroups" validate:"required,min=1,dive"`
}

// CacheTTL returns the result cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FetchTimeout returns the per-request feed fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// Load reads the YAML config at path, applies environment overrides
// (TRACKER_API_KEY, TRACKER_PORT; a .env file is honored when
// present), validates, and fills defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if v := os.Getenv("TRACKER_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TRACKER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRACKER_PORT: %q", v)
		}
		cfg.Port = p
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CacheTTLSeconds == 0 {
		cfg.CacheTTLSeconds = 30
	}
	if cfg.FetchTimeoutMS == 0 {
		cfg.FetchTimeoutMS = 30000
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Group returns the feed group with the given id, or nil.
func (c *Config) Group(id string) *FeedGroup {
	for i := range c.FeedGroups {
		if c.FeedGroups[i].ID == id {
			return &c.FeedGroups[i]
		}
	}
	return nil
}
