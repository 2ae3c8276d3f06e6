package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Marketplace MarketplaceConfig
	Cache       CacheConfig
	History     HistoryConfig
	Alerts      AlertsConfig
	Detection   DetectionConfig
	Vision      VisionConfig
	Store       StoreConfig
	Browser     BrowserConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig selects the zap level and encoder
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// MarketplaceConfig holds the search client configuration
type MarketplaceConfig struct {
	DefaultRegion  string          `mapstructure:"default_region"`
	BaseURL        string          `mapstructure:"base_url"` // overrides the region domain (tests, proxies)
	MaxRetries     int             `mapstructure:"max_retries"`
	Backoff        []time.Duration `mapstructure:"backoff"`
	Transport      string          `mapstructure:"transport"` // "http", "browser" or "auto"
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	UserAgents     []string        `mapstructure:"user_agents"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	SearchTTL       time.Duration `mapstructure:"search_ttl"`
	VisionTTL       time.Duration `mapstructure:"vision_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryConfig holds price history defaults
type HistoryConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days"`
	MaxPoints     int  `mapstructure:"max_points"`
	PerSearch     int  `mapstructure:"per_search"`
}

// AlertsConfig holds alert evaluator defaults
type AlertsConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	AutoCheck           bool          `mapstructure:"auto_check"`
	CheckInterval       time.Duration `mapstructure:"check_interval"`
	InterAlertDelay     time.Duration `mapstructure:"inter_alert_delay"`
	RepeatNotifications bool          `mapstructure:"repeat_notifications"`
}

// DetectionConfig holds extractor defaults
type DetectionConfig struct {
	MinConfidence float64       `mapstructure:"min_confidence"`
	Debounce      time.Duration `mapstructure:"debounce"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// VisionConfig holds the image classification configuration
type VisionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Model        string        `mapstructure:"model"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxCalls     int           `mapstructure:"max_calls"`
	Window       time.Duration `mapstructure:"window"`
	Concurrency  int           `mapstructure:"concurrency"`
	Debounce     time.Duration `mapstructure:"debounce"`
	MinImageSize int           `mapstructure:"min_image_size"`
}

// StoreConfig selects the persisted key-value backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "memory", "sqlite" or "postgres"
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// BrowserConfig configures the headless transport
type BrowserConfig struct {
	RemoteURL string `mapstructure:"remote_url"`
	Headless  bool   `mapstructure:"headless"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults are enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Watcher reloads configuration when the config file changes
type Watcher struct {
	v    *viper.Viper
	mu   sync.Mutex
	last *Config
}

// Watch loads configuration and calls onChange with every valid reload of the config file.
// Invalid reloads are reported through onError and the previous config stays current.
func Watch(onChange func(*Config), onError func(error)) (*Watcher, *Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	w := &Watcher{v: v, last: cfg}
	if v.ConfigFileUsed() == "" {
		return w, cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		w.mu.Lock()
		w.last = next
		w.mu.Unlock()
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()

	return w, cfg, nil
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// File returns the config file in use, or "" when running from env and defaults
func (w *Watcher) File() string {
	return w.v.ConfigFileUsed()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Marketplace defaults
	v.SetDefault("marketplace.default_region", "US")
	v.SetDefault("marketplace.base_url", "")
	v.SetDefault("marketplace.max_retries", 3)
	v.SetDefault("marketplace.backoff", []string{"1s", "2s", "4s"})
	v.SetDefault("marketplace.transport", "http")
	v.SetDefault("marketplace.request_timeout", "30s")
	v.SetDefault("marketplace.user_agents", []string{})

	// Cache defaults
	v.SetDefault("cache.search_ttl", "5m")
	v.SetDefault("cache.vision_ttl", "30m")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention_days", 30)
	v.SetDefault("history.max_points", 100)
	v.SetDefault("history.per_search", 3)

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.auto_check", true)
	v.SetDefault("alerts.check_interval", "360m")
	v.SetDefault("alerts.inter_alert_delay", "2s")
	v.SetDefault("alerts.repeat_notifications", false)

	v.SetDefault("detection.min_confidence", 0.5)
	v.SetDefault("detection.debounce", "2s")
	v.SetDefault("detection.watch_interval", "1m")

	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("vision.model", "gemini-2.0-flash")
	v.SetDefault("vision.batch_size", 3)
	v.SetDefault("vision.max_calls", 10)
	v.SetDefault("vision.window", "60s")
	v.SetDefault("vision.concurrency", 2)
	v.SetDefault("vision.debounce", "500ms")
	v.SetDefault("vision.min_image_size", 80)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/pricelens.db")
	v.SetDefault("store.dsn", "")

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if config.Store.DSN == "" {
			return fmt.Errorf("store DSN is required when store driver is 'postgres' (set PRICELENS_STORE_DSN)")
		}
	default:
		return fmt.Errorf("store driver must be 'memory', 'sqlite' or 'postgres', got: %s", config.Store.Driver)
	}

	switch config.Marketplace.Transport {
	case "http", "browser", "auto":
	default:
		return fmt.Errorf("marketplace transport must be 'http', 'browser' or 'auto', got: %s", config.Marketplace.Transport)
	}

	if config.Marketplace.MaxRetries < 0 {
		return fmt.Errorf("marketplace max_retries must not be negative")
	}
	if len(config.Marketplace.Backoff) < config.Marketplace.MaxRetries {
		return fmt.Errorf("marketplace backoff needs %d entries, got %d", config.Marketplace.MaxRetries, len(config.Marketplace.Backoff))
	}

	if config.History.RetentionDays <= 0 || config.History.MaxPoints <= 0 {
		return fmt.Errorf("history retention_days and max_points must be positive")
	}

	if config.Detection.MinConfidence < 0.5 || config.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection min_confidence must be within [0.5, 1], got: %v", config.Detection.MinConfidence)
	}

	if config.Vision.BatchSize <= 0 || config.Vision.MaxCalls <= 0 || config.Vision.Window <= 0 {
		return fmt.Errorf("vision batch_size, max_calls and window must be positive")
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got: %s", config.Logging.Format)
	}

	return nil
}
