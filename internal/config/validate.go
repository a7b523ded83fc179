package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Fetcher.BaseURL); err != nil {
		return fmt.Errorf("fetcher.base_url: %w", err)
	}
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.RateLimit < 0 {
		return fmt.Errorf("fetcher.rate_limit must be >= 0, got %v", cfg.Fetcher.RateLimit)
	}

	if cfg.Fallback.Enabled && cfg.Fallback.Timeout <= 0 {
		return fmt.Errorf("fallback.timeout must be > 0")
	}

	if cfg.Enrich.DelayMin < 0 {
		return fmt.Errorf("enrich.delay_min must be >= 0")
	}
	if cfg.Enrich.DelayMax < cfg.Enrich.DelayMin {
		return fmt.Errorf("enrich.delay_max (%s) must be >= enrich.delay_min (%s)", cfg.Enrich.DelayMax, cfg.Enrich.DelayMin)
	}
	if cfg.Enrich.Timeout <= 0 {
		return fmt.Errorf("enrich.timeout must be > 0")
	}
	if cfg.Enrich.Cache.Enabled && cfg.Enrich.Cache.Addr == "" {
		return fmt.Errorf("enrich.cache.addr is required when the cache is enabled")
	}

	if cfg.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir must not be empty")
	}
	if cfg.Storage.Mongo.Enabled && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri is required when mongo is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	seen := make(map[string]bool, len(cfg.Queries))
	for i := range cfg.Queries {
		q := &cfg.Queries[i]
		if err := q.Validate(); err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
	}

	return nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// Query returns the stored query with the given name.
func (c *Config) Query(name string) (*QueryConfig, bool) {
	for i := range c.Queries {
		if c.Queries[i].Name == name {
			return &c.Queries[i], true
		}
	}
	return nil, false
}
