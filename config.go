package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the warehouse ETL run
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
}

// ServiceConfig contains service-level settings
type ServiceConfig struct {
	Name string `yaml:"name"`

	// HealthPort enables the health/metrics HTTP server while the batch
	// runs. Empty disables it.
	HealthPort string `yaml:"health_port"`
}

// StorageConfig contains the input and output storage roots.
// Roots may be s3:// URLs or local directories; both are handed to the
// engine's storage layer as-is.
type StorageConfig struct {
	InputURL  string `yaml:"input_url"`
	OutputURL string `yaml:"output_url"`

	// S3 region and endpoint overrides. Credentials are never configured
	// here: the engine's S3 connector picks them up from the ambient
	// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY environment.
	AWSRegion   string `yaml:"aws_region"`
	AWSEndpoint string `yaml:"aws_endpoint"`
}

// EngineConfig contains engine tuning settings
type EngineConfig struct {
	Threads     int    `yaml:"threads"`
	MemoryLimit string `yaml:"memory_limit"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Set defaults
	if config.Service.Name == "" {
		config.Service.Name = "song-play-warehouse"
	}
	if config.Storage.AWSRegion == "" {
		config.Storage.AWSRegion = os.Getenv("AWS_REGION")
	}
	if config.Storage.AWSRegion == "" {
		config.Storage.AWSRegion = os.Getenv("AWS_DEFAULT_REGION")
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.InputURL == "" {
		return fmt.Errorf("storage.input_url is required")
	}
	if c.Storage.OutputURL == "" {
		return fmt.Errorf("storage.output_url is required")
	}
	if c.Engine.Threads < 0 {
		return fmt.Errorf("engine.threads must not be negative")
	}
	return nil
}

// UsesObjectStorage reports whether either storage root is an s3:// URL.
func (c *Config) UsesObjectStorage() bool {
	return isS3URL(c.Storage.InputURL) || isS3URL(c.Storage.OutputURL)
}

func isS3URL(url string) bool {
	return strings.HasPrefix(url, "s3://") ||
		strings.HasPrefix(url, "s3a://") ||
		strings.HasPrefix(url, "s3n://")
}
