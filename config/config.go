package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUpstreamURL is used when neither the environment nor the config
// file names the indexer endpoint.
const DefaultUpstreamURL = "http://localhost:8080/v1/graphql"

type Config struct {
	Liqo     LiqoConfig     `yaml:"liqo"`
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Poller   PollerConfig   `yaml:"poller"`
	Export   ExportConfig   `yaml:"export"`
	Capture  CaptureConfig  `yaml:"capture"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LiqoConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig points at the liquidation indexer's GraphQL endpoint.
// Resolution precedence: INDEXER_URL env var, then the yaml value, then
// DefaultUpstreamURL.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
}

type ExportConfig struct {
	RequireEmail bool    `yaml:"require_email"`
	DefaultLimit int     `yaml:"default_limit"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	RateBurst    int     `yaml:"rate_burst"`
}

type CaptureConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads the yaml configuration, applies environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "0.0.0.0:3000"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = DefaultUpstreamURL
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = 5 * time.Second
	}
	if cfg.Poller.Limit <= 0 {
		cfg.Poller.Limit = 10
	}
	if cfg.Export.DefaultLimit <= 0 {
		cfg.Export.DefaultLimit = 1000
	}
	if cfg.Export.RatePerSec <= 0 {
		cfg.Export.RatePerSec = 1
	}
	if cfg.Export.RateBurst <= 0 {
		cfg.Export.RateBurst = 3
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "exports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INDEXER_URL"); v != "" {
		cfg.Upstream.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("INDEXER_API_KEY"); v != "" {
		cfg.Upstream.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAPTURE_DSN"); v != "" {
		cfg.Capture.DSN = strings.TrimSpace(v)
	}
	if cfg.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Archive.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Archive.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Archive.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Archive.Bucket = strings.TrimSpace(v)
		}
	}
	cfg.Archive.Bucket = strings.TrimSpace(cfg.Archive.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.Liqo.Name == "" {
		return fmt.Errorf("liqo.name is required")
	}

	if cfg.Liqo.Version == "" {
		return fmt.Errorf("liqo.version is required")
	}

	if cfg.Poller.Limit > 10000 {
		return fmt.Errorf("poller.limit must not exceed 10000")
	}

	if cfg.Export.DefaultLimit > 10000 {
		return fmt.Errorf("export.default_limit must not exceed 10000")
	}

	if cfg.Capture.Enabled && cfg.Capture.DSN == "" {
		return fmt.Errorf("capture.dsn is required when capture is enabled")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive is enabled")
		}
		if cfg.Archive.Region == "" {
			return fmt.Errorf("archive.region is required when archive is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.Bucket) {
			return fmt.Errorf("archive.bucket '%s' is invalid", cfg.Archive.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
