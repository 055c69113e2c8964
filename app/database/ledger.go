package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

var (
	_ Ledger  = (*SQLiteLedger)(nil)
	_ History = (*SQLiteLedger)(nil)
)

const busyTimeout = 5 * time.Second

// SQLiteLedger implements Ledger and History on a single SQLite file.
type SQLiteLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

type Option func(*SQLiteLedger)

// WithClock replaces the ledger's notion of now.
func WithClock(now func() time.Time) Option {
	return func(l *SQLiteLedger) {
		l.now = now
	}
}

// Open opens or creates the ledger at path and migrates it to the current
// schema.
func Open(path string, opts ...Option) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if dirty {
		db.Close()
		return nil, fmt.Errorf("ledger schema version %d is dirty", version)
	}

	slog.Debug("Ledger opened", "path", path, "schema_version", version)

	l := &SQLiteLedger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *SQLiteLedger) IsSeen(ctx context.Context, url string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM seen_urls WHERE url = ?);`

	var exists bool
	if err := l.db.GetContext(ctx, &exists, q, url); err != nil {
		return false, fmt.Errorf("failed to check seen url: %w", err)
	}

	return exists, nil
}

func (l *SQLiteLedger) LoadSeenSet(ctx context.Context) (map[string]struct{}, error) {
	const q = `SELECT url FROM seen_urls;`

	var urls []string
	if err := l.db.SelectContext(ctx, &urls, q); err != nil {
		return nil, fmt.Errorf("failed to load seen urls: %w", err)
	}

	seen := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		seen[url] = struct{}{}
	}

	return seen, nil
}

// seenChunkSize bounds the rows per INSERT so statements stay well under
// SQLite's bound-parameter limit.
const seenChunkSize = 200

// RecordSeen inserts every record in one transaction, in chunks of
// seenChunkSize rows per statement. URLs already present keep their
// original row.
func (l *SQLiteLedger) RecordSeen(ctx context.Context, records []SeenRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	now := l.now()
	rows := lo.Map(records, func(record SeenRecord, _ int) seenRow {
		row := seenRow{
			URL:         record.URL,
			SourceName:  record.SourceName,
			Title:       record.Title,
			FirstSeenAt: toMillis(now),
		}
		if !record.FirstSeenAt.IsZero() {
			row.FirstSeenAt = toMillis(record.FirstSeenAt)
		}
		return row
	})

	for _, chunk := range lo.Chunk(rows, seenChunkSize) {
		insert := sq.Insert("seen_urls").
			Columns("url", "source_name", "title", "first_seen_at").
			Suffix("ON CONFLICT (url) DO NOTHING")
		for _, row := range chunk {
			insert = insert.Values(row.URL, row.SourceName, row.Title, row.FirstSeenAt)
		}

		query, args, buildErr := insert.ToSql()
		if buildErr != nil {
			return fmt.Errorf("failed to build seen url insert: %w", buildErr)
		}

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to record seen urls: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen urls: %w", err)
	}

	return nil
}

// EvictOlderThan removes records first seen more than retentionDays ago and
// returns how many were removed.
func (l *SQLiteLedger) EvictOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := l.now().AddDate(0, 0, -retentionDays)

	query, args, err := sq.Delete("seen_urls").
		Where(sq.Lt{"first_seen_at": toMillis(cutoff)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build eviction query: %w", err)
	}

	result, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to evict seen urls: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count evicted urls: %w", err)
	}

	return int(removed), nil
}

func (l *SQLiteLedger) SeenCount(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM seen_urls;`

	var count int
	if err := l.db.GetContext(ctx, &count, q); err != nil {
		return 0, fmt.Errorf("failed to count seen urls: %w", err)
	}

	return count, nil
}

func (l *SQLiteLedger) RecordFeedRunStat(ctx context.Context, stat FeedRunStat) error {
	recordedAt := stat.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = l.now()
	}

	query, args, err := sq.Insert("feed_runs").
		Columns("run_id", "source_name", "items_fetched", "items_new", "items_published",
			"succeeded", "error_detail", "duration_ms", "recorded_at").
		Values(stat.RunID, stat.SourceName, stat.ItemsFetched, stat.ItemsNew, stat.ItemsPublished,
			stat.Succeeded, stat.ErrorDetail, stat.DurationMs, toMillis(recordedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build feed run insert: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record feed run stat: %w", err)
	}

	return nil
}

func (l *SQLiteLedger) RecordDigestRunStat(ctx context.Context, stat DigestRunStat) error {
	generatedAt := stat.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = l.now()
	}

	query, args, err := sq.Insert("digest_runs").
		Columns("run_id", "total_sources", "succeeded_sources", "failed_sources",
			"new_item_count", "published_count", "duplicate_count", "evicted_count", "generated_at").
		Values(stat.RunID, stat.TotalSources, stat.SucceededSources, stat.FailedSources,
			stat.NewItemCount, stat.PublishedCount, stat.DuplicateCount, stat.EvictedCount, toMillis(generatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build digest run insert: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record digest run stat: %w", err)
	}

	return nil
}

// RecentDigestRuns returns up to limit runs, newest first.
func (l *SQLiteLedger) RecentDigestRuns(ctx context.Context, limit int) ([]DigestRunStat, error) {
	if limit <= 0 {
		return []DigestRunStat{}, nil
	}

	query, args, err := sq.Select("run_id", "total_sources", "succeeded_sources", "failed_sources",
		"new_item_count", "published_count", "duplicate_count", "evicted_count", "generated_at").
		From("digest_runs").
		OrderBy("generated_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build digest run query: %w", err)
	}

	var rows []digestRunRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch digest runs: %w", err)
	}

	stats := make([]DigestRunStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, row.stat())
	}

	return stats, nil
}

// FeedRunStats returns the per-source rows of one run in insertion order.
func (l *SQLiteLedger) FeedRunStats(ctx context.Context, runID string) ([]FeedRunStat, error) {
	query, args, err := sq.Select("run_id", "source_name", "items_fetched", "items_new", "items_published",
		"succeeded", "error_detail", "duration_ms", "recorded_at").
		From("feed_runs").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feed run query: %w", err)
	}

	var rows []feedRunRow
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch feed runs: %w", err)
	}

	stats := make([]FeedRunStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, row.stat())
	}

	return stats, nil
}
