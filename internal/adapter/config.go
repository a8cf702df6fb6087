package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Polling PollingConfig `mapstructure:"polling"`
	Storage StorageConfig `mapstructure:"storage"`
	UI      UIConfig      `mapstructure:"ui"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig holds the backend connection settings
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`    // per request attempt
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int           `mapstructure:"rate_burst"`
}

// CacheConfig holds the query cache defaults
type CacheConfig struct {
	StaleTime  time.Duration `mapstructure:"stale_time"`
	GCTime     time.Duration `mapstructure:"gc_time"`
	Retry      int           `mapstructure:"retry"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// PollingConfig holds background refresh intervals
type PollingConfig struct {
	Notifications time.Duration `mapstructure:"notifications"`
	Providers     time.Duration `mapstructure:"providers"`
	Session       time.Duration `mapstructure:"session"`
	GC            time.Duration `mapstructure:"gc"`
}

// StorageConfig holds local persistence settings
type StorageConfig struct {
	SessionDB string `mapstructure:"session_db"` // empty keeps the session in memory
}

// UIConfig holds UI configuration
type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:3000/api",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			RateBurst: 20,
		},
		Cache: CacheConfig{
			StaleTime:  5 * time.Minute,
			GCTime:     10 * time.Minute,
			Retry:      3,
			RetryDelay: time.Second,
		},
		Polling: PollingConfig{
			Notifications: 30 * time.Second,
			Providers:     time.Minute,
			Session:       5 * time.Minute,
			GC:            time.Minute,
		},
		Storage: StorageConfig{
			SessionDB: filepath.Join(defaultDataPath(), "session.db"),
		},
		UI: UIConfig{
			Theme: "default",
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), "handy.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the per-user data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "handy")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "handy")
	}
}

// DefaultConfigPath returns the default config directory for the current OS
func DefaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "handy")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "handy")
	}
}

// LoadConfig loads configuration from the default location and environment
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigPath())
}

// LoadConfigFrom loads config.yaml from dir (or the working directory),
// then applies HANDY_* environment overrides, e.g. HANDY_API_BASE_URL
func LoadConfigFrom(dir string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(dir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("HANDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys
// absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, val := range settings(cfg) {
		v.SetDefault(key, val)
	}
}

func settings(cfg *Config) map[string]any {
	return map[string]any{
		"api.base_url":          cfg.API.BaseURL,
		"api.timeout":           cfg.API.Timeout,
		"api.rate_limit":        cfg.API.RateLimit,
		"api.rate_burst":        cfg.API.RateBurst,
		"cache.stale_time":      cfg.Cache.StaleTime,
		"cache.gc_time":         cfg.Cache.GCTime,
		"cache.retry":           cfg.Cache.Retry,
		"cache.retry_delay":     cfg.Cache.RetryDelay,
		"polling.notifications": cfg.Polling.Notifications,
		"polling.providers":     cfg.Polling.Providers,
		"polling.session":       cfg.Polling.Session,
		"polling.gc":            cfg.Polling.GC,
		"storage.session_db":    cfg.Storage.SessionDB,
		"ui.theme":              cfg.UI.Theme,
		"logging.file":          cfg.Logging.File,
		"logging.level":         cfg.Logging.Level,
	}
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative, got %v", c.API.RateLimit)
	}
	if c.Cache.Retry < 0 {
		return fmt.Errorf("cache.retry must not be negative, got %d", c.Cache.Retry)
	}
	return nil
}

// SaveConfig writes cfg to dir/config.yaml
func SaveConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, val := range settings(cfg) {
		if d, ok := val.(time.Duration); ok {
			// keep durations human readable in the file
			val = d.String()
		}
		v.Set(key, val)
	}

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveBaseURL updates just the API base URL in the config under dir
func SaveBaseURL(dir, baseURL string) error {
	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		return err
	}
	cfg.API.BaseURL = baseURL
	return SaveConfig(dir, cfg)
}
