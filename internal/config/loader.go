package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// LoadDotEnv exports the variables in the given .env files (default
// ./.env) into the process environment so Load sees them. Variables that
// are already set win. A missing file is reported as false, not an error.
func LoadDotEnv(paths ...string) (bool, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return false, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return false, fmt.Errorf("load env file: %w", err)
	}
	return true, nil
}

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied on top by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("HOMESTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("homestalk")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".homestalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setDefaults registers default values in viper so env overrides resolve
// for keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.base_url", cfg.Fetcher.BaseURL)
	v.SetDefault("fetcher.csv_path", cfg.Fetcher.CSVPath)
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.referer", cfg.Fetcher.Referer)
	v.SetDefault("fetcher.rate_limit", cfg.Fetcher.RateLimit)
	v.SetDefault("fetcher.rate_burst", cfg.Fetcher.RateBurst)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("fallback.enabled", cfg.Fallback.Enabled)
	v.SetDefault("fallback.headless", cfg.Fallback.Headless)
	v.SetDefault("fallback.timeout", cfg.Fallback.Timeout)
	v.SetDefault("fallback.viewport_width", cfg.Fallback.ViewportWidth)
	v.SetDefault("fallback.viewport_height", cfg.Fallback.ViewportHeight)
	v.SetDefault("fallback.settle_delay", cfg.Fallback.SettleDelay)
	v.SetDefault("fallback.bin", cfg.Fallback.Bin)

	v.SetDefault("enrich.enabled", cfg.Enrich.Enabled)
	v.SetDefault("enrich.delay_min", cfg.Enrich.DelayMin)
	v.SetDefault("enrich.delay_max", cfg.Enrich.DelayMax)
	v.SetDefault("enrich.timeout", cfg.Enrich.Timeout)
	v.SetDefault("enrich.cache.enabled", cfg.Enrich.Cache.Enabled)
	v.SetDefault("enrich.cache.addr", cfg.Enrich.Cache.Addr)
	v.SetDefault("enrich.cache.ttl", cfg.Enrich.Cache.TTL)

	v.SetDefault("rows.dedup_url", cfg.Rows.DedupURL)
	v.SetDefault("rows.required_fields", cfg.Rows.RequiredFields)

	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
