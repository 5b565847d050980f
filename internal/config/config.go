// Package config loads the service configuration from YAML with env
// overrides for deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/epitrack/epitrack/internal/domain"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Quality QualityConfig `yaml:"quality"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DataConfig points at the flat-file inputs.
type DataConfig struct {
	HistoryFile string `yaml:"history_file"` // CSV of per-country daily rows
	ModelsDir   string `yaml:"models_dir"`   // one subdirectory per country
}

// CacheConfig configures the optional Redis read-through cache in front of
// the flat-file store. Disabled by default; the store is correct without it.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// QualityConfig exposes the data-quality gate thresholds.
type QualityConfig struct {
	MinForecastFloor   float64 `yaml:"min_forecast_floor"`
	DefaultHistoryDays int     `yaml:"default_history_days"`
}

// Policy converts the configured thresholds into the shared gate policy.
func (q QualityConfig) Policy() domain.QualityPolicy {
	return domain.QualityPolicy{
		MinForecastFloor:   q.MinForecastFloor,
		DefaultHistoryDays: q.DefaultHistoryDays,
	}
}

// Default returns a configuration that works with no file present.
func Default() Config {
	policy := domain.DefaultQualityPolicy()

	port := 8090
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           port,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Data: DataConfig{
			HistoryFile: "data/history.csv",
			ModelsDir:   "models",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTLSecs: 300,
		},
		Quality: QualityConfig{
			MinForecastFloor:   policy.MinForecastFloor,
			DefaultHistoryDays: policy.DefaultHistoryDays,
		},
	}
}

// Load reads YAML from path over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Data.HistoryFile == "" {
		return fmt.Errorf("data.history_file must be set")
	}
	if c.Data.ModelsDir == "" {
		return fmt.Errorf("data.models_dir must be set")
	}
	if c.Quality.DefaultHistoryDays < 1 {
		return fmt.Errorf("quality.default_history_days must be positive")
	}
	if c.Quality.MinForecastFloor < 0 {
		return fmt.Errorf("quality.min_forecast_floor must be non-negative")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr must be set when cache is enabled")
	}
	if c.Cache.TTLSecs < 0 {
		return fmt.Errorf("cache.ttl_secs must be non-negative")
	}
	return nil
}

// CacheTTL returns the configured cache TTL as a duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}
