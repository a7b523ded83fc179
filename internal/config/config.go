package config

import (
	"time"

	"github.com/IshaanNene/homestalk/internal/filter"
	"github.com/IshaanNene/homestalk/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for homestalk.
type Config struct {
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Fallback FallbackConfig `mapstructure:"fallback" yaml:"fallback"`
	Enrich   EnrichConfig   `mapstructure:"enrich"   yaml:"enrich"`
	Rows     RowsConfig     `mapstructure:"rows"     yaml:"rows"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
	Queries  []QueryConfig  `mapstructure:"queries"  yaml:"queries"`
}

// FetcherConfig controls the bulk export request and the shared HTTP client.
type FetcherConfig struct {
	BaseURL         string        `mapstructure:"base_url"          yaml:"base_url"`
	CSVPath         string        `mapstructure:"csv_path"          yaml:"csv_path"`
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	Referer         string        `mapstructure:"referer"           yaml:"referer"`
	RateLimit       float64       `mapstructure:"rate_limit"        yaml:"rate_limit"` // bulk requests per second, 0 = unlimited
	RateBurst       int           `mapstructure:"rate_burst"        yaml:"rate_burst"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// FallbackConfig controls the headless browser download path.
type FallbackConfig struct {
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"`
	Headless       bool          `mapstructure:"headless"        yaml:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"         yaml:"timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width"  yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"    yaml:"settle_delay"`
	Bin            string        `mapstructure:"bin"             yaml:"bin"`
}

// EnrichConfig controls listing page enrichment.
type EnrichConfig struct {
	Enabled  bool          `mapstructure:"enabled"   yaml:"enabled"`
	DelayMin time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
	Timeout  time.Duration `mapstructure:"timeout"   yaml:"timeout"`
	Cache    CacheConfig   `mapstructure:"cache"     yaml:"cache"`
}

// CacheConfig controls the optional Redis page cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr    string        `mapstructure:"addr"    yaml:"addr"`
	TTL     time.Duration `mapstructure:"ttl"     yaml:"ttl"`
}

// RowsConfig enables optional row middleware run ahead of the filter
// predicate. Everything is off by default.
type RowsConfig struct {
	DedupURL       bool     `mapstructure:"dedup_url"       yaml:"dedup_url"`
	RequiredFields []string `mapstructure:"required_fields" yaml:"required_fields,omitempty"`
}

// StorageConfig controls artifact output.
type StorageConfig struct {
	OutputDir string      `mapstructure:"output_dir" yaml:"output_dir"`
	Mongo     MongoConfig `mapstructure:"mongo"      yaml:"mongo"`
}

// MongoConfig controls the optional MongoDB detail sink.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// QueryConfig is a stored query plus the client-side filter applied to its
// results.
type QueryConfig struct {
	types.Query `mapstructure:",squash" yaml:",inline"`
	Filter      filter.Criteria `mapstructure:"filter"    yaml:"filter,omitempty"`
	NoScrape    bool            `mapstructure:"no_scrape" yaml:"no_scrape,omitempty"`
}

const (
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultBaseURL   = "https://www.redfin.com"
	DefaultCSVPath   = "/stingray/api/gis-csv"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			BaseURL:         DefaultBaseURL,
			CSVPath:         DefaultCSVPath,
			Timeout:         30 * time.Second,
			MaxBodySize:     50 * 1024 * 1024, // 50MB
			UserAgent:       DefaultUserAgent,
			Referer:         DefaultBaseURL + "/",
			RateLimit:       0.5,
			RateBurst:       1,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
		},
		Fallback: FallbackConfig{
			Enabled:        true,
			Headless:       true,
			Timeout:        30 * time.Second,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			SettleDelay:    2 * time.Second,
		},
		Enrich: EnrichConfig{
			Enabled:  true,
			DelayMin: 2 * time.Second,
			DelayMax: 4 * time.Second,
			Timeout:  30 * time.Second,
			Cache: CacheConfig{
				Addr: "localhost:6379",
				TTL:  6 * time.Hour,
			},
		},
		Storage: StorageConfig{
			OutputDir: "./data",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "homestalk",
				Collection: "listing_details",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// SampleQueries are written by init-config.
func SampleQueries() []QueryConfig {
	return []QueryConfig{
		{
			Query: types.Query{
				Name:       "Miami",
				RegionID:   11203,
				RegionType: types.RegionCity,
				MinPrice:   types.Int(400000),
				MaxPrice:   types.Int(800000),
				MinBeds:    types.Int(3),
				MinBaths:   types.Float(2),
				NumHomes:   types.DefaultNumHomes,
			},
		},
		{
			Query: types.Query{
				Name:         "Bothell WA",
				RegionID:     29439,
				RegionType:   types.RegionCity,
				MinPrice:     types.Int(500000),
				MaxPrice:     types.Int(760000),
				MinBeds:      types.Int(3),
				MinBaths:     types.Float(2),
				PropertyType: "1",
				Garage:       true,
				MinParking:   types.Int(2),
			},
			Filter: filter.Criteria{
				MinSqft: types.Float(1500),
				MaxDOM:  types.Float(30),
			},
		},
	}
}
