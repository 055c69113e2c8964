package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxItemsPerFeed = 10
	DefaultMaxTotalItems   = 50
	DefaultRetentionDays   = 30
	DefaultTimeout         = 30   // seconds
	DefaultRequestDelay    = 1000 // milliseconds
	DefaultConcurrency     = 1
	DefaultCategory        = "General"
)

// FilterFields lists the item fields a feed filter may target.
var FilterFields = []string{"title", "description", "author", "link"}

// Load reads the YAML document at path, expanding ${VAR} references from the
// environment, then applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// EnabledFeeds returns the feeds that should be fetched, in document order.
func (c *Config) EnabledFeeds() []Feed {
	feeds := make([]Feed, 0, len(c.Feeds))
	for _, feed := range c.Feeds {
		if feed.IsEnabled() {
			feeds = append(feeds, feed)
		}
	}
	return feeds
}

func setDefaults(config *Config) {
	if config.Newsletter.RetentionDays == 0 {
		config.Newsletter.RetentionDays = DefaultRetentionDays
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = DefaultTimeout
	}
	if config.Settings.Concurrency == 0 {
		config.Settings.Concurrency = DefaultConcurrency
	}

	for i := range config.Feeds {
		config.Feeds[i].Name = strings.TrimSpace(config.Feeds[i].Name)
		config.Feeds[i].URL = strings.TrimSpace(config.Feeds[i].URL)
		if strings.TrimSpace(config.Feeds[i].Category) == "" {
			config.Feeds[i].Category = DefaultCategory
		}
	}
}

func validate(config *Config) error {
	if strings.TrimSpace(config.Newsletter.Title) == "" {
		return fmt.Errorf("newsletter title is required")
	}
	if config.Newsletter.PerFeedCap() < 0 {
		return fmt.Errorf("max items per feed must be non-negative")
	}
	if config.Newsletter.TotalCap() < 0 {
		return fmt.Errorf("max total items must be non-negative")
	}
	if config.Newsletter.RetentionDays < 0 {
		return fmt.Errorf("retention days must be positive")
	}

	if config.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if config.Settings.GetRequestDelay() < 0 {
		return fmt.Errorf("request delay must be non-negative")
	}
	if config.Settings.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}

	names := make(map[string]bool, len(config.Feeds))
	for i, feed := range config.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("feed at index %d: name is required", i)
		}
		if names[feed.Name] {
			return fmt.Errorf("feed at index %d: duplicate name %q", i, feed.Name)
		}
		names[feed.Name] = true

		if feed.URL == "" {
			return fmt.Errorf("feed %q: URL is required", feed.Name)
		}
		u, err := url.Parse(feed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("feed %q: URL must be an absolute http(s) URL", feed.Name)
		}
		if feed.Timeout < 0 {
			return fmt.Errorf("feed %q: timeout must be non-negative", feed.Name)
		}
		for _, filter := range feed.Filters {
			if !slices.Contains(FilterFields, filter.Field) {
				return fmt.Errorf("feed %q: unsupported filter field %q", feed.Name, filter.Field)
			}
			if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
				return fmt.Errorf("feed %q: filter on %q needs includes or excludes", feed.Name, filter.Field)
			}
		}
	}

	return nil
}
