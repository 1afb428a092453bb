// Package config loads the engine configuration from
// ~/.imageorganizer/config.yaml with environment overrides, and
// implements the protected-scope checks.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"imageorganizer/internal/models"
)

// Config is the root configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Rank    RankConfig    `mapstructure:"rank"`
	Staging StagingConfig `mapstructure:"staging"`
	Remote  RemoteConfig  `mapstructure:"remote"`

	// Protected folders or remote folder ids that must never produce a
	// staging operation.
	Protected []string `mapstructure:"protected"`

	// CatalogPath is the SQLite database holding scan results.
	CatalogPath string `mapstructure:"catalog_path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ScanConfig controls enumeration and clustering.
type ScanConfig struct {
	Workers   int `mapstructure:"workers"`
	Threshold int `mapstructure:"threshold"` // Hamming distance, 0-64
}

// RankConfig holds the quality scoring weights.
type RankConfig struct {
	ResolutionWeight float64 `mapstructure:"resolution_weight"`
	SizeWeight       float64 `mapstructure:"size_weight"`
}

// StagingConfig controls the staging ledger.
type StagingConfig struct {
	Dir        string `mapstructure:"dir"`
	LedgerPath string `mapstructure:"ledger_path"`
}

// RemoteConfig controls the remote store client.
type RemoteConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	PageSize        int           `mapstructure:"page_size"`
	FetchThumbnails bool          `mapstructure:"fetch_thumbnails"`
	Concurrency     int           `mapstructure:"concurrency"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
}

// DefaultDir returns the application's config/state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imageorganizer"
	}
	return filepath.Join(home, ".imageorganizer")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()
	v.SetDefault("log.level", "info")
	v.SetDefault("scan.workers", 8)
	v.SetDefault("scan.threshold", 10)
	v.SetDefault("rank.resolution_weight", 10.0)
	v.SetDefault("rank.size_weight", 1.0)
	v.SetDefault("staging.dir", filepath.Join(dir, "staging"))
	v.SetDefault("staging.ledger_path", filepath.Join(dir, "ledger.db"))
	v.SetDefault("catalog_path", filepath.Join(dir, "catalog.db"))
	v.SetDefault("protected", []string{})
	v.SetDefault("remote.page_size", 100)
	v.SetDefault("remote.fetch_thumbnails", true)
	v.SetDefault("remote.concurrency", 4)
	v.SetDefault("remote.rate_per_second", 10.0)
	v.SetDefault("remote.rate_burst", 5)
	v.SetDefault("remote.retry_attempts", 5)
	v.SetDefault("remote.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("remote.retry_max_delay", 30*time.Second)
}

// Load reads the configuration from path, falling back to defaults when
// the file does not exist. Environment variables prefixed with
// IMAGEORGANIZER_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IMAGEORGANIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("no config file at %s, using defaults", path)
		} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("no config file found, using defaults")
		} else {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration back to path in YAML form.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("log.level", cfg.Log.Level)
	v.Set("scan.workers", cfg.Scan.Workers)
	v.Set("scan.threshold", cfg.Scan.Threshold)
	v.Set("rank.resolution_weight", cfg.Rank.ResolutionWeight)
	v.Set("rank.size_weight", cfg.Rank.SizeWeight)
	v.Set("staging.dir", cfg.Staging.Dir)
	v.Set("staging.ledger_path", cfg.Staging.LedgerPath)
	v.Set("catalog_path", cfg.CatalogPath)
	v.Set("protected", cfg.Protected)
	v.Set("remote.base_url", cfg.Remote.BaseURL)
	v.Set("remote.token", cfg.Remote.Token)
	v.Set("remote.page_size", cfg.Remote.PageSize)
	v.Set("remote.fetch_thumbnails", cfg.Remote.FetchThumbnails)
	v.Set("remote.concurrency", cfg.Remote.Concurrency)
	v.Set("remote.rate_per_second", cfg.Remote.RatePerSecond)
	v.Set("remote.rate_burst", cfg.Remote.RateBurst)
	v.Set("remote.retry_attempts", cfg.Remote.RetryAttempts)
	v.Set("remote.retry_base_delay", cfg.Remote.RetryBaseDelay.String())
	v.Set("remote.retry_max_delay", cfg.Remote.RetryMaxDelay.String())

	return v.WriteConfigAs(path)
}

// ProtectedScopes matches records against the configured protected
// patterns. Local records match when any pattern is a case-insensitive
// substring of their path; remote records match on parent folder
// reference or display name.
type ProtectedScopes struct {
	patterns []string
}

// NewProtectedScopes builds a checker from configured patterns.
func NewProtectedScopes(patterns []string) *ProtectedScopes {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" {
			lowered = append(lowered, strings.ToLower(p))
		}
	}
	return &ProtectedScopes{patterns: lowered}
}

// Patterns returns the active patterns.
func (p *ProtectedScopes) Patterns() []string {
	return p.patterns
}

// IsProtected reports whether a record falls inside a protected scope.
func (p *ProtectedScopes) IsProtected(rec *models.ImageRecord) bool {
	if len(p.patterns) == 0 {
		return false
	}

	var haystacks []string
	switch rec.Origin {
	case models.OriginLocal:
		haystacks = []string{strings.ToLower(rec.SourceID)}
	case models.OriginRemote:
		haystacks = []string{
			strings.ToLower(rec.Location),
			strings.ToLower(rec.DisplayName),
		}
	}

	for _, pattern := range p.patterns {
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, pattern) {
				return true
			}
		}
	}
	return false
}

// Scopes returns the protected-scope checker for this configuration.
func (c *Config) Scopes() *ProtectedScopes {
	return NewProtectedScopes(c.Protected)
}
