package feed

import (
	"time"
)

// Item is one normalized entry of a fetched feed. Link is the dedup key and
// is never empty.
type Item struct {
	ID          string    `json:"id"` // sha256 of guid|link|title|published, diagnostic only
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category"`
	Author      string    `json:"author,omitempty"`
}

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// Source is a configured feed as the fetcher sees it.
type Source struct {
	Name           string
	URL            string
	Category       string
	Timeout        time.Duration
	ExtractContent bool
	MaxExtractions int
	Filters        []Filter
}

// FetchOutcome is the result of fetching one source. ErrorDetail is set iff
// Succeeded is false, in which case Items is empty.
type FetchOutcome struct {
	SourceName  string
	Category    string
	URL         string
	Succeeded   bool
	Items       []Item
	ErrorDetail string
	Duration    time.Duration
}
