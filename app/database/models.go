package database

import (
	"time"
)

// SeenRecord marks a URL as already published. FirstSeenAt is stamped by the
// ledger when left zero.
type SeenRecord struct {
	URL         string
	SourceName  string
	Title       string
	FirstSeenAt time.Time
}

// FeedRunStat is one source's row for one run.
type FeedRunStat struct {
	RunID          string    `json:"run_id"`
	SourceName     string    `json:"source_name"`
	ItemsFetched   int       `json:"items_fetched"`
	ItemsNew       int       `json:"items_new"`
	ItemsPublished int       `json:"items_published"`
	Succeeded      bool      `json:"succeeded"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// DigestRunStat summarizes one run. NewItemCount is counted before the total
// cap, PublishedCount after it.
type DigestRunStat struct {
	RunID            string    `json:"run_id"`
	TotalSources     int       `json:"total_sources"`
	SucceededSources int       `json:"succeeded_sources"`
	FailedSources    int       `json:"failed_sources"`
	NewItemCount     int       `json:"new_item_count"`
	PublishedCount   int       `json:"published_count"`
	DuplicateCount   int       `json:"duplicate_count"`
	EvictedCount     int       `json:"evicted_count"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Rows as stored. Timestamps are unix milliseconds so range comparisons stay
// numeric.

type seenRow struct {
	URL         string `db:"url"`
	SourceName  string `db:"source_name"`
	Title       string `db:"title"`
	FirstSeenAt int64  `db:"first_seen_at"`
}

type feedRunRow struct {
	RunID          string `db:"run_id"`
	SourceName     string `db:"source_name"`
	ItemsFetched   int    `db:"items_fetched"`
	ItemsNew       int    `db:"items_new"`
	ItemsPublished int    `db:"items_published"`
	Succeeded      bool   `db:"succeeded"`
	ErrorDetail    string `db:"error_detail"`
	DurationMs     int64  `db:"duration_ms"`
	RecordedAt     int64  `db:"recorded_at"`
}

type digestRunRow struct {
	RunID            string `db:"run_id"`
	TotalSources     int    `db:"total_sources"`
	SucceededSources int    `db:"succeeded_sources"`
	FailedSources    int    `db:"failed_sources"`
	NewItemCount     int    `db:"new_item_count"`
	PublishedCount   int    `db:"published_count"`
	DuplicateCount   int    `db:"duplicate_count"`
	EvictedCount     int    `db:"evicted_count"`
	GeneratedAt      int64  `db:"generated_at"`
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (r feedRunRow) stat() FeedRunStat {
	return FeedRunStat{
		RunID:          r.RunID,
		SourceName:     r.SourceName,
		ItemsFetched:   r.ItemsFetched,
		ItemsNew:       r.ItemsNew,
		ItemsPublished: r.ItemsPublished,
		Succeeded:      r.Succeeded,
		ErrorDetail:    r.ErrorDetail,
		DurationMs:     r.DurationMs,
		RecordedAt:     fromMillis(r.RecordedAt),
	}
}

func (r digestRunRow) stat() DigestRunStat {
	return DigestRunStat{
		RunID:            r.RunID,
		TotalSources:     r.TotalSources,
		SucceededSources: r.SucceededSources,
		FailedSources:    r.FailedSources,
		NewItemCount:     r.NewItemCount,
		PublishedCount:   r.PublishedCount,
		DuplicateCount:   r.DuplicateCount,
		EvictedCount:     r.EvictedCount,
		GeneratedAt:      fromMillis(r.GeneratedAt),
	}
}
