// Package config loads the settings of an export run.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StinkyLord/gh-sbom-export/internal/logger"
	"github.com/StinkyLord/gh-sbom-export/internal/model"
	"github.com/StinkyLord/gh-sbom-export/internal/rules"
)

// StdoutDir as output directory writes documents to stdout.
const StdoutDir = "-"

const maxWorkers = 32

// Config is the complete configuration of one run. It is loaded once at
// startup and passed explicitly to the pipeline.
type Config struct {
	Owner     string   `yaml:"owner" json:"owner"`           // Default owner for repos given without one
	Repos     []string `yaml:"repos" json:"repos"`           // "repo" or "owner/repo"
	OutputDir string   `yaml:"output_dir" json:"output_dir"` // Directory receiving {repo}.json, "-" for stdout
	Workers   int      `yaml:"workers" json:"workers"`       // Repositories processed concurrently (1-32, default: 1)

	GitHub  GitHubConfig  `yaml:"github" json:"github"`
	Rules   rules.Set     `yaml:"rules,omitempty" json:"rules,omitempty"` // Overrides of the built-in rule set
	Publish PublishConfig `yaml:"publish" json:"publish"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GitHubConfig controls the API client.
type GitHubConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Token     string        `yaml:"token,omitempty" json:"-"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second
	RateBurst int           `yaml:"rate_burst" json:"rate_burst"`
}

// PublishConfig lists optional destinations besides the output directory.
type PublishConfig struct {
	S3 S3Config `yaml:"s3" json:"s3"`
}

// S3Config describes an S3-compatible bucket receiving a copy of every
// written document.
type S3Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Region    string `yaml:"region" json:"region"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access_key,omitempty" json:"-"`
	SecretKey string `yaml:"secret_key,omitempty" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

// LoggingConfig controls basic logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info, warn or error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: ".",
		Workers:   1,
		GitHub: GitHubConfig{
			BaseURL:   "https://api.github.com",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			RateBurst: 2,
		},
		Publish: PublishConfig{
			S3: S3Config{Region: "us-east-1", UseSSL: true},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any), a .env file in the working directory and the environment. Command
// line flags are applied by the caller, followed by Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is the normal case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Logger().Warnf("Ignoring .env file: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing YAML config %s: %w", path, err)
	}
	logger.Logger().Debugf("Loaded configuration from %s", path)
	return nil
}

// ApplyEnv overrides settings from environment variables. lookup is
// os.LookupEnv outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("GITHUB_TOKEN"); ok {
		c.GitHub.Token = v
	} else if v, ok := get("GH_TOKEN"); ok {
		c.GitHub.Token = v
	}
	if v, ok := get("GITHUB_API_URL"); ok {
		c.GitHub.BaseURL = v
	}
	if v, ok := get("SBOM_OWNER"); ok {
		c.Owner = v
	}
	if v, ok := get("SBOM_REPOS"); ok {
		c.Repos = SplitList(v)
	}
	if v, ok := get("SBOM_OUTPUT_DIR"); ok {
		c.OutputDir = v
	}
	if v, ok := get("AWS_ACCESS_KEY_ID"); ok {
		c.Publish.S3.AccessKey = v
	}
	if v, ok := get("AWS_SECRET_ACCESS_KEY"); ok {
		c.Publish.S3.SecretKey = v
	}
}

// SplitList splits a comma or whitespace separated list, dropping blanks.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// RuleSet returns the built-in rules with the configured overrides applied.
func (c *Config) RuleSet() rules.Set {
	return rules.Default().Merge(c.Rules)
}

// Repositories resolves the configured repository list. Entries without an
// owner take Config.Owner. Duplicates are dropped, order is kept.
func (c *Config) Repositories() ([]model.Repository, error) {
	var out []model.Repository
	seen := make(map[string]bool, len(c.Repos))

	for _, entry := range c.Repos {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if c.Owner == "" {
				return nil, fmt.Errorf("repository %q has no owner and no default owner is configured", entry)
			}
			entry = c.Owner + "/" + entry
		}
		repo, ok := model.ParseRepository(entry)
		if !ok {
			return nil, fmt.Errorf("invalid repository %q, expected owner/repo", entry)
		}
		key := strings.ToLower(repo.Slug())
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, repo)
	}

	if len(out) == 0 {
		return nil, errors.New("no repositories configured")
	}
	return out, nil
}

// Validate checks the configuration for consistency. It does not set
// defaults; that is DefaultConfig's job.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0, got %d", c.Workers)
	}
	if c.Workers > maxWorkers {
		return fmt.Errorf("workers cannot exceed %d, got %d", maxWorkers, c.Workers)
	}

	c.OutputDir = strings.TrimSpace(c.OutputDir)
	if c.OutputDir == "" {
		return errors.New("output_dir cannot be empty")
	}
	if c.OutputDir == StdoutDir && c.Workers > 1 {
		return errors.New("writing to stdout requires workers: 1")
	}

	if _, err := c.Repositories(); err != nil {
		return err
	}

	u, err := url.Parse(c.GitHub.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid github.base_url %q", c.GitHub.BaseURL)
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive, got %s", c.GitHub.Timeout)
	}
	if c.GitHub.RateLimit <= 0 {
		return fmt.Errorf("github.rate_limit must be positive, got %v", c.GitHub.RateLimit)
	}
	if c.GitHub.RateBurst < 1 {
		return fmt.Errorf("github.rate_burst must be at least 1, got %d", c.GitHub.RateBurst)
	}

	if s3 := c.Publish.S3; s3.Enabled {
		if strings.TrimSpace(s3.Endpoint) == "" {
			return errors.New("publish.s3.endpoint is required when S3 publishing is enabled")
		}
		if strings.TrimSpace(s3.Bucket) == "" {
			return errors.New("publish.s3.bucket is required when S3 publishing is enabled")
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if !slices.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			c.Logging.Level, strings.Join(validLevels, ", "))
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)

	return nil
}

// GetConfigPaths returns the standard configuration file paths to check.
func GetConfigPaths() []string {
	paths := []string{
		"gh-sbom-export.yml",
		".gh-sbom-export.yml",
		"gh-sbom-export.yaml",
		".gh-sbom-export.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths,
			filepath.Join(home, ".config", "gh-sbom-export", "config.yml"),
			filepath.Join(home, ".config", "gh-sbom-export", "config.yaml"),
		)
	}
	return paths
}

// FindConfigFile returns the first existing standard config path, or "".
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
