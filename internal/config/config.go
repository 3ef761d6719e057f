// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/logging"
	"github.com/JakeFAU/image-crawler/internal/sources"
)

// EnvPrefix is prepended to every environment override, e.g.
// CRAWLER_CRAWL_MAX_DOWNLOADS.
const EnvPrefix = "CRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   logging.Config   `mapstructure:"logging"`
	Crawl     CrawlConfig      `mapstructure:"crawl"`
	Providers sources.Settings `mapstructure:"providers"`
	Browser   BrowserConfig    `mapstructure:"browser"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Mirror    MirrorConfig     `mapstructure:"mirror"`
	Progress  ProgressConfig   `mapstructure:"progress"`
}

// CrawlConfig holds the run limits and the destination directory.
type CrawlConfig struct {
	crawler.Limits `mapstructure:",squash"`
	Destination    string `mapstructure:"destination"`
}

// BrowserConfig configures the shared Chrome session.
type BrowserConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	WindowWidth    int           `mapstructure:"window_width"`
	WindowHeight   int           `mapstructure:"window_height"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	ExecPath       string        `mapstructure:"exec_path"`
}

// HTTPConfig configures image and API fetches.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PerHostQPS    float64       `mapstructure:"per_host_qps"`
	Burst         int           `mapstructure:"burst"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
}

// ServerConfig controls the HTTP control API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig configures Postgres run history. An empty DSN disables it.
type StoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig configures run summary notifications. An empty project
// disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MirrorConfig configures the GCS mirror. An empty bucket disables it.
type MirrorConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// SearchPaths are tried in order for a file named config.{yaml,json,toml}
// when no explicit path is given.
var SearchPaths = []string{".", "/etc/imagecrawler", "$HOME/.imagecrawler"}

// Load builds a Config from defaults, the file at path (or the first
// config file found on SearchPaths), and the environment.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load against a caller-supplied Viper, typically one with CLI
// flags already bound.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("crawl.max_downloads", 50)
	v.SetDefault("crawl.per_source_max", 20)
	v.SetDefault("crawl.min_width", 0)
	v.SetDefault("crawl.min_height", 0)
	v.SetDefault("crawl.min_bytes", 1024)
	v.SetDefault("crawl.extensions", []string{"jpg", "png", "webp", "gif"})
	v.SetDefault("crawl.timeout_ms", 15000)
	v.SetDefault("crawl.safe_search", true)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.destination", "images")

	v.SetDefault("providers.order", []string{sources.WikimediaName, sources.OpenverseName})
	v.SetDefault("providers.override", []string{})
	v.SetDefault("providers.sources."+sources.WikimediaName+".enabled", true)
	v.SetDefault("providers.sources."+sources.OpenverseName+".enabled", true)

	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")

	v.SetDefault("http.user_agent", "image-crawler/0.1 (+https://github.com/JakeFAU/image-crawler)")
	v.SetDefault("http.timeout", "20s")
	v.SetDefault("http.per_host_qps", 2.0)
	v.SetDefault("http.burst", 2)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 25<<20)

	v.SetDefault("server.port", 8080)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("pubsub.topic", "image-crawl-runs")

	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 32)
	v.SetDefault("progress.max_batch_wait", "250ms")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.GlobalMaxDownloads <= 0 {
		return fmt.Errorf("crawl.max_downloads must be > 0")
	}
	if c.Crawl.PerSourceMaxResults < 0 {
		return fmt.Errorf("crawl.per_source_max must be >= 0")
	}
	if c.Crawl.MinWidth < 0 || c.Crawl.MinHeight < 0 {
		return fmt.Errorf("crawl.min_width and crawl.min_height must be >= 0")
	}
	if c.Crawl.MinByteSize < 0 {
		return fmt.Errorf("crawl.min_bytes must be >= 0")
	}
	if len(c.Crawl.AllowedExtensions) == 0 {
		return fmt.Errorf("crawl.extensions must list at least one extension")
	}
	if c.Crawl.TimeoutMs <= 0 {
		return fmt.Errorf("crawl.timeout_ms must be > 0")
	}
	if strings.TrimSpace(c.Crawl.Destination) == "" {
		return fmt.Errorf("crawl.destination is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is set")
	}
	for name, src := range c.Providers.Sources {
		if src.MaxResults < 0 {
			return fmt.Errorf("providers.sources.%s.max_results must be >= 0", name)
		}
	}
	return nil
}
