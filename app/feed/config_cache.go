package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRefreshInterval = 3600 // seconds
	DefaultMaxItems        = 100
)

// ConfigCache holds the subscription configs found in the feeds directory,
// one <name>.yml file per feed.
type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

// Run loads every config in the feeds directory. A missing directory is not
// an error; a single invalid file is.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Feeds directory not found", "dir", cc.feedsDir)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		feedName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(feedName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded",
			"feed", feedName,
			"enabled", config.Settings.Enabled,
			"refresh_interval", config.Settings.RefreshInterval,
			"filters", len(config.Filters),
			"rules", len(config.Rules))
	}

	return nil
}

// LoadConfig reads, validates and caches a single config, replacing any
// previously cached version.
func (cc *ConfigCache) LoadConfig(feedName string) (*Config, error) {
	configFile := cc.getConfigFilePath(feedName)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.Name = feedName

	if err := validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.Name] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return feedConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	return maps.Clone(cc.cache)
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for name, config := range cc.cache {
		if config.Settings.Enabled {
			enabledConfigs[name] = config
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feedConfig Config
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if feedConfig.Settings.RefreshInterval == 0 {
		feedConfig.Settings.RefreshInterval = DefaultRefreshInterval
	}
	if feedConfig.Settings.MaxItems == 0 {
		feedConfig.Settings.MaxItems = DefaultMaxItems
	}

	return &feedConfig, nil
}

// filterFields are the item fields a filter may match against.
var filterFields = map[string]bool{
	"title":       true,
	"description": true,
	"content":     true,
	"authors":     true,
	"link":        true,
	"categories":  true,
}

func validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if feedConfig.Name == "" {
		return fmt.Errorf("feed name is required")
	}
	if feedConfig.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	if feedConfig.Settings.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must be non-negative")
	}
	if feedConfig.Settings.MaxItems < 0 {
		return fmt.Errorf("max items must be non-negative")
	}

	for i, filter := range feedConfig.Filters {
		if !filterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	for i, rule := range feedConfig.Rules {
		if rule.Name == "" || rule.Selector == "" {
			return fmt.Errorf("rule at index %d must have a name and a selector", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(feedName string) string {
	return filepath.Join(cc.feedsDir, feedName+".yml")
}
