// Package config handles YAML config file loading for the catapult CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents a catapult.yaml configuration file.
// All values act as defaults for command flags; flags always override.
type Config struct {
	// Host is the LANraragi base URL, e.g. http://lanraragi:3000.
	Host string `yaml:"host"`
	// APIKey is the server API key, sent base64-encoded as a bearer token.
	APIKey string `yaml:"api_key"`

	// CachePath is the local duplicate cache database. Empty disables it.
	CachePath string `yaml:"cache_path"`
	// ReportPath appends batch records to a report file. Empty disables it.
	ReportPath string `yaml:"report_path"`

	// Workers bounds concurrent uploads within a batch.
	Workers int `yaml:"workers"`
	// MaxRetries is the connection retry ceiling; -1 retries forever.
	MaxRetries int `yaml:"max_retries"`
	// RemoveDuplicates enables the upfront remote ID sweep.
	RemoveDuplicates bool `yaml:"remove_duplicates"`
	// CheckIntegrity decodes zip members before upload to catch corruption.
	CheckIntegrity bool `yaml:"check_integrity"`

	NhentaiArchivist ProviderConfig `yaml:"nhentai_archivist"`
	PixivUtil2       ProviderConfig `yaml:"pixivutil2"`

	Notify NotifyConfig `yaml:"notify"`
}

// ProviderConfig locates one downloader's database and content directory.
type ProviderConfig struct {
	DB       string `yaml:"db"`
	Contents string `yaml:"contents"`
}

// NotifyConfig holds batch completion notifier defaults.
type NotifyConfig struct {
	Type    string            `yaml:"type"` // "webhook" or "redis"
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks the fields every server-facing command needs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required (flag --host or config host)")
	}
	if _, err := url.Parse(c.Host); err != nil {
		return fmt.Errorf("invalid host %q: %w", c.Host, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MaxRetries < -1 {
		return fmt.Errorf("max_retries must be >= -1, got %d", c.MaxRetries)
	}
	switch c.Notify.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("notify type must be webhook or redis, got %q", c.Notify.Type)
	}
	return nil
}
