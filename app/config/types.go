package config

import "time"

// Config is the newsletter document: what the digest is called, how much of
// each feed is considered, and which feeds are read.
type Config struct {
	Newsletter Newsletter `yaml:"newsletter"`
	Settings   Settings   `yaml:"settings"`
	Feeds      []Feed     `yaml:"feeds"`
}

// Newsletter holds the digest identity and selection limits.
type Newsletter struct {
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	Author          string `yaml:"author"`
	Link            string `yaml:"link"` // public URL of the rendered digest
	MaxItemsPerFeed *int   `yaml:"max_items_per_feed"`
	MaxTotalItems   *int   `yaml:"max_total_items"`
	RetentionDays   int    `yaml:"retention_days"`
}

// Settings controls how politely feeds are fetched.
type Settings struct {
	Timeout      int  `yaml:"timeout"`       // seconds
	RequestDelay *int `yaml:"request_delay"` // milliseconds between request starts
	Concurrency  int  `yaml:"concurrency"`
}

// Feed is one configured source.
type Feed struct {
	Name           string   `yaml:"name"`
	URL            string   `yaml:"url"`
	Category       string   `yaml:"category"`
	Enabled        *bool    `yaml:"enabled"`
	Timeout        int      `yaml:"timeout"` // seconds, overrides settings.timeout
	ExtractContent bool     `yaml:"extract_content"`
	Filters        []Filter `yaml:"filters"`
}

// Filter drops items whose field matches an exclude term or misses every
// include term. Matching is a case-insensitive substring test.
type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

func (n *Newsletter) PerFeedCap() int {
	if n.MaxItemsPerFeed == nil {
		return DefaultMaxItemsPerFeed
	}
	return *n.MaxItemsPerFeed
}

func (n *Newsletter) TotalCap() int {
	if n.MaxTotalItems == nil {
		return DefaultMaxTotalItems
	}
	return *n.MaxTotalItems
}

// GetRequestDelay returns the configured delay, the default when unset. An
// explicit zero disables the delay.
func (s *Settings) GetRequestDelay() time.Duration {
	if s.RequestDelay == nil {
		return DefaultRequestDelay * time.Millisecond
	}
	return time.Duration(*s.RequestDelay) * time.Millisecond
}

// GetTimeout returns the feed's own timeout when set, the global one otherwise.
func (f *Feed) GetTimeout(settings Settings) time.Duration {
	if f.Timeout > 0 {
		return time.Duration(f.Timeout) * time.Second
	}
	return time.Duration(settings.Timeout) * time.Second
}

func (f *Feed) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}
