// Package config provides configuration management for the artwork subsystem
// with Viper integration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Cache profiles map a platform's memory situation to eviction thresholds
// without changing cache behavior otherwise.
const (
	ProfileConstrained = "constrained"
	ProfileGenerous    = "generous"
	ProfileCustom      = "custom"
)

const (
	constrainedMaxEntries = 120
	constrainedMaxCost    = 64 << 20 // 64 MiB
	generousMaxEntries    = 512
	generousMaxCost       = 256 << 20 // 256 MiB
)

// Config is the complete configuration for the artwork subsystem.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Decode  DecodeConfig  `mapstructure:"decode" yaml:"decode"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CacheConfig holds the two eviction thresholds. A named profile fills both;
// ProfileCustom uses the explicit values as-is.
type CacheConfig struct {
	Profile           string `mapstructure:"profile" yaml:"profile"`
	MaxEntries        int    `mapstructure:"max_entries" yaml:"max_entries"`
	MaxTotalCostBytes int64  `mapstructure:"max_total_cost_bytes" yaml:"max_total_cost_bytes"`
}

// DecodeConfig holds decode pipeline configuration.
type DecodeConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// SizeClasses maps a purpose tag to its pixel bound.
	SizeClasses map[string]int `mapstructure:"size_classes" yaml:"size_classes"`
}

// Manager loads the configuration and watches it for changes.
type Manager struct {
	v   *viper.Viper
	mu  sync.RWMutex
	cfg Config
}

// Load reads configuration from path. An empty path, or a missing file,
// yields the defaults.
func Load(path string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	m := &Manager{v: v}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("cache.profile", ProfileConstrained)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.max_total_cost_bytes", 0)
	v.SetDefault("decode.max_concurrent", 4)
	v.SetDefault("decode.size_classes", map[string]int{
		"grid": 320,
		"list": 64,
	})
}

func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	applyProfile(&cfg.Cache)

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// applyProfile resolves a named profile into concrete thresholds. Explicit
// values win only under ProfileCustom.
func applyProfile(c *CacheConfig) {
	switch c.Profile {
	case ProfileGenerous:
		c.MaxEntries = generousMaxEntries
		c.MaxTotalCostBytes = generousMaxCost
	case ProfileCustom:
		if c.MaxEntries <= 0 {
			c.MaxEntries = constrainedMaxEntries
		}
		if c.MaxTotalCostBytes <= 0 {
			c.MaxTotalCostBytes = constrainedMaxCost
		}
	default:
		c.Profile = ProfileConstrained
		c.MaxEntries = constrainedMaxEntries
		c.MaxTotalCostBytes = constrainedMaxCost
	}
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch re-reads the file on change and invokes onChange with the new
// configuration. Cache limit changes typically feed straight into
// Service.ConfigureCacheLimits.
func (m *Manager) Watch(onChange func(Config)) {
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		if err := m.reload(); err != nil {
			return
		}
		if onChange != nil {
			onChange(m.Config())
		}
	})
	m.v.WatchConfig()
}
