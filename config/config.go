// Package config resolves news-cli settings from defaults, the YAML config
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robertmeta/news-cli/logging"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath = "NEWS_CLI_CONFIG"
	EnvAuthURL    = "NEWS_CLI_AUTH_URL"
	EnvAPIURL     = "NEWS_CLI_API_URL"
	EnvTimeout    = "NEWS_CLI_TIMEOUT"
	EnvDB         = "NEWS_CLI_DB"
	EnvLogLevel   = "NEWS_CLI_LOG_LEVEL"
	EnvPageSize   = "NEWS_CLI_PAGE_SIZE"
	EnvCatalogTTL = "NEWS_CLI_CATALOG_TTL"
)

// Config holds every setting the CLI needs.
type Config struct {
	AuthURL    string        `yaml:"auth_url"`
	APIURL     string        `yaml:"api_url"`
	Timeout    time.Duration `yaml:"timeout"`
	DB         string        `yaml:"db"`
	LogLevel   string        `yaml:"log_level"`
	PageSize   int           `yaml:"page_size"`
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AuthURL:    "http://localhost:8080/api/auth",
		APIURL:     "http://localhost:8080/api",
		Timeout:    15 * time.Second,
		DB:         DefaultDBPath(),
		LogLevel:   "warn",
		PageSize:   10,
		CatalogTTL: 24 * time.Hour,
	}
}

// DefaultDBPath returns ~/.config/news-cli/news-cli.db, or a relative file
// when the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "news-cli.db"
	}
	return filepath.Join(home, ".config", "news-cli", "news-cli.db")
}

// FilePath returns the config file location: $NEWS_CLI_CONFIG or
// ~/.config/news-cli/config.yaml.
func FilePath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "news-cli", "config.yaml"), nil
}

// Load resolves the configuration with precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file at path ("" means FilePath())
// 3. Default values (lowest priority)
// Command-line flags are applied by the caller on top of the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := FilePath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	if err := cfg.mergeFile(path); err != nil {
		return cfg, err
	}
	if err := cfg.mergeEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// mergeFile applies values from the YAML file at path. A missing file is not
// an error; a file that exists but cannot be parsed is.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.AuthURL != "" {
		c.AuthURL = file.AuthURL
	}
	if file.APIURL != "" {
		c.APIURL = file.APIURL
	}
	if file.Timeout != 0 {
		c.Timeout = file.Timeout
	}
	if file.DB != "" {
		c.DB = file.DB
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if file.PageSize != 0 {
		c.PageSize = file.PageSize
	}
	if file.CatalogTTL != 0 {
		c.CatalogTTL = file.CatalogTTL
	}
	return nil
}

func (c *Config) mergeEnv() error {
	if val := os.Getenv(EnvAuthURL); val != "" {
		c.AuthURL = val
	}
	if val := os.Getenv(EnvAPIURL); val != "" {
		c.APIURL = val
	}
	if val := os.Getenv(EnvDB); val != "" {
		c.DB = val
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv(EnvTimeout); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if val := os.Getenv(EnvCatalogTTL); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCatalogTTL, err)
		}
		c.CatalogTTL = d
	}
	if val := os.Getenv(EnvPageSize); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPageSize, err)
		}
		c.PageSize = n
	}
	return nil
}

// Validate checks that URLs are absolute http(s) addresses, durations and
// sizes are positive and the log level is known.
func (c *Config) Validate() error {
	if err := validateBaseURL("auth_url", c.AuthURL); err != nil {
		return err
	}
	if err := validateBaseURL("api_url", c.APIURL); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.CatalogTTL < 0 {
		return errors.New("catalog_ttl must not be negative")
	}
	if c.PageSize < 1 {
		return errors.New("page_size must be positive")
	}
	if c.DB == "" {
		return errors.New("db path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: %q must be an absolute http(s) URL", name, raw)
	}
	return nil
}
