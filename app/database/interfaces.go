package database

import (
	"context"
)

// Ledger is the durable record of published URLs and run statistics. One run
// owns a Ledger exclusively between Open and Close.
type Ledger interface {
	IsSeen(ctx context.Context, url string) (bool, error)
	LoadSeenSet(ctx context.Context) (map[string]struct{}, error)
	RecordSeen(ctx context.Context, records []SeenRecord) error
	EvictOlderThan(ctx context.Context, retentionDays int) (int, error)

	RecordFeedRunStat(ctx context.Context, stat FeedRunStat) error
	RecordDigestRunStat(ctx context.Context, stat DigestRunStat) error

	Close() error
}

// History is the read side of run statistics.
type History interface {
	RecentDigestRuns(ctx context.Context, limit int) ([]DigestRunStat, error)
	FeedRunStats(ctx context.Context, runID string) ([]FeedRunStat, error)
	SeenCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
