// Package config loads shopscout configuration and initialises logging.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	DataDir     string            `yaml:"data_dir" mapstructure:"data_dir"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Browser     BrowserConfig     `yaml:"browser" mapstructure:"browser"`
	Mobile      MobileConfig      `yaml:"mobile" mapstructure:"mobile"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Credentials types.Credentials `yaml:"credentials" mapstructure:"credentials"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Proxy       ProxyConfig       `yaml:"proxy" mapstructure:"proxy"`
	Crawl       CrawlConfig       `yaml:"crawl" mapstructure:"crawl"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// HTTPConfig configures plain HTTP fetching.
type HTTPConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TLSFingerprint bool    `yaml:"tls_fingerprint" mapstructure:"tls_fingerprint"`
	RespectRobots  bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	HostRPS        float64 `yaml:"host_rps" mapstructure:"host_rps"`
	MaxRedirects   int     `yaml:"max_redirects" mapstructure:"max_redirects"`
}

// BrowserConfig configures the stealth browser.
type BrowserConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath       string `yaml:"exec_path" mapstructure:"exec_path"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CSRTimeoutSecs int    `yaml:"csr_timeout_secs" mapstructure:"csr_timeout_secs"`
	MaxReloads     int    `yaml:"max_reloads" mapstructure:"max_reloads"`
	ClickReviewTab bool   `yaml:"click_review_tab" mapstructure:"click_review_tab"`
}

// MobileConfig configures the Smart Store mobile API client.
type MobileConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	BrandBaseURL string `yaml:"brand_base_url" mapstructure:"brand_base_url"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig configures the official search API client.
type SearchConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Display     int     `yaml:"display" mapstructure:"display"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// StoreConfig configures result persistence.
type StoreConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ProxyConfig lists optional outbound proxies.
type ProxyConfig struct {
	URLs         []string `yaml:"urls" mapstructure:"urls"`
	MaxFailCount int      `yaml:"max_fail_count" mapstructure:"max_fail_count"`
}

// CrawlConfig holds orchestrator-level settings.
type CrawlConfig struct {
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SelectorVersion  string `yaml:"selector_version" mapstructure:"selector_version"`
	ImageTopUpBelow  int    `yaml:"image_top_up_below" mapstructure:"image_top_up_below"`
	MinArticleRunes  int    `yaml:"min_article_runes" mapstructure:"min_article_runes"`
	BatchConcurrency int    `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	MetricsAddr      string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// HTTPTimeout returns the per-request timeout for plain fetches.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSecs) * time.Second
}

// CacheTTL returns the result cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// CrawlTimeout returns the global per-crawl timeout.
func (c *Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSecs) * time.Second
}

// SQLitePath returns the history database path; relative paths live in DataDir.
func (c *Config) SQLitePath() string {
	if c.Store.SQLitePath == "" || filepath.IsAbs(c.Store.SQLitePath) {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.DataDir, c.Store.SQLitePath)
}

// Load reads configuration from an optional file, the environment and defaults.
// configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shopscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHOPSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("data_dir", "./data")

	v.SetDefault("http.timeout_secs", 20)
	v.SetDefault("http.tls_fingerprint", true)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.host_rps", 2.0)
	v.SetDefault("http.max_redirects", 10)

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout_secs", 20)
	v.SetDefault("browser.csr_timeout_secs", 45)
	v.SetDefault("browser.max_reloads", 3)
	v.SetDefault("browser.click_review_tab", true)

	v.SetDefault("mobile.base_url", "https://m.smartstore.naver.com")
	v.SetDefault("mobile.brand_base_url", "https://m.brand.naver.com")
	v.SetDefault("mobile.max_attempts", 3)
	v.SetDefault("mobile.timeout_secs", 15)

	v.SetDefault("search.base_url", "https://openapi.naver.com/v1/search")
	v.SetDefault("search.rps", 10.0)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.display", 10)

	// Bound explicitly so AutomaticEnv picks them up during Unmarshal.
	_ = v.BindEnv("credentials.search_client_id")
	_ = v.BindEnv("credentials.search_client_secret")
	_ = v.BindEnv("credentials.ad_api_key")
	_ = v.BindEnv("credentials.ad_api_secret")
	_ = v.BindEnv("credentials.ad_customer_id")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl_minutes", 30)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.sqlite_path", "shopscout.db")

	v.SetDefault("proxy.max_fail_count", 3)

	v.SetDefault("crawl.timeout_secs", 120)
	v.SetDefault("crawl.selector_version", "")
	v.SetDefault("crawl.image_top_up_below", 10)
	v.SetDefault("crawl.min_article_runes", 200)
	v.SetDefault("crawl.batch_concurrency", 2)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.HTTP.TimeoutSecs <= 0 {
		return eris.Errorf("config: http.timeout_secs must be positive, got %d", c.HTTP.TimeoutSecs)
	}
	if c.Mobile.MaxAttempts <= 0 || c.Mobile.MaxAttempts > 10 {
		return eris.Errorf("config: mobile.max_attempts out of range (1-10), got %d", c.Mobile.MaxAttempts)
	}
	if c.Browser.MaxReloads < 1 {
		return eris.Errorf("config: browser.max_reloads must be at least 1, got %d", c.Browser.MaxReloads)
	}
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return eris.Errorf("config: unknown cache.driver %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && c.Cache.RedisURL == "" {
		return eris.New("config: cache.redis_url is required for the redis driver")
	}
	if c.Crawl.BatchConcurrency <= 0 {
		return eris.Errorf("config: crawl.batch_concurrency must be positive, got %d", c.Crawl.BatchConcurrency)
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
