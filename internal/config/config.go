package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-engine/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Crawl    CrawlConfig    `yaml:"crawl" mapstructure:"crawl"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PlacesConfig holds Places API credentials and rate limits.
type PlacesConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	QPS         float64 `yaml:"qps" mapstructure:"qps"`
	MinDelayMs  int     `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SearchConfig configures the discovery phase.
type SearchConfig struct {
	MaxPages   int `yaml:"max_pages" mapstructure:"max_pages"`
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// CrawlConfig configures the website crawl phase.
type CrawlConfig struct {
	MaxPages    int  `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	Disabled    bool `yaml:"disabled" mapstructure:"disabled"`
}

// CacheConfig configures the durable cache backend.
type CacheConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	Path        string            `yaml:"path" mapstructure:"path"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
	Disabled    bool              `yaml:"disabled" mapstructure:"disabled"`
}

// PipelineConfig configures run-level behavior.
type PipelineConfig struct {
	Resume bool `yaml:"resume" mapstructure:"resume"`
	// RunID overrides the derived run identifier when set.
	RunID string `yaml:"run_id" mapstructure:"run_id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("places.qps", 10.0)
	v.SetDefault("places.min_delay_ms", 100)
	v.SetDefault("places.max_attempts", 3)
	v.SetDefault("search.max_pages", 3)
	v.SetDefault("search.max_results", 0)
	v.SetDefault("crawl.max_pages", 6)
	v.SetDefault("crawl.timeout_secs", 10)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "lead-cache.db")
	v.SetDefault("pipeline.resume", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the parts of the configuration a run depends on.
func (c *Config) Validate() error {
	if c.Places.Key == "" {
		return eris.New("config: places.key is required (set LEAD_PLACES_KEY)")
	}
	if c.Places.QPS <= 0 {
		return eris.New("config: places.qps must be positive")
	}
	if c.Search.MaxPages < 1 || c.Search.MaxPages > 3 {
		return eris.New("config: search.max_pages must be between 1 and 3")
	}
	if c.Search.MaxResults < 0 {
		return eris.New("config: search.max_results must not be negative")
	}
	if c.Crawl.MaxPages < 1 {
		return eris.New("config: crawl.max_pages must be at least 1")
	}
	if c.Crawl.Concurrency < 1 {
		return eris.New("config: crawl.concurrency must be at least 1")
	}
	switch c.Cache.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown cache.driver %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "postgres" && c.Cache.DatabaseURL == "" {
		return eris.New("config: cache.database_url is required for the postgres driver")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
