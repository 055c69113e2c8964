package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func openTestLedger(t *testing.T) (*SQLiteLedger, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	ledger, err := Open(filepath.Join(t.TempDir(), "nested", "digest.db"), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	return ledger, clock
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.RecordSeen(context.Background(), []SeenRecord{{URL: "https://a", SourceName: "A"}}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	seen, err := second.IsSeen(context.Background(), "https://a")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestOpenFailsOnUnusablePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(filepath.Join(blocker, "digest.db"))
	assert.Error(t, err)
}

func TestRecordSeenAndLookup(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.RecordSeen(ctx, []SeenRecord{
		{URL: "https://example.com/a", SourceName: "A", Title: "First"},
		{URL: "https://example.com/b", SourceName: "B", Title: "Second"},
	}))

	seen, err := ledger.IsSeen(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = ledger.IsSeen(ctx, "https://example.com/missing")
	require.NoError(t, err)
	assert.False(t, seen)

	set, err := ledger.LoadSeenSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"https://example.com/a": {},
		"https://example.com/b": {},
	}, set)
}

func TestRecordSeenEmptyIsNoop(t *testing.T) {
	ledger, _ := openTestLedger(t)

	require.NoError(t, ledger.RecordSeen(context.Background(), nil))

	count, err := ledger.SeenCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordSeenKeepsFirstInsertion(t *testing.T) {
	ledger, clock := openTestLedger(t)
	ctx := context.Background()
	firstSeen := clock.now

	require.NoError(t, ledger.RecordSeen(ctx, []SeenRecord{
		{URL: "https://example.com/a", SourceName: "A", Title: "Original"},
		{URL: "https://example.com/b", SourceName: "A", Title: "B"},
	}))

	clock.now = clock.now.Add(48 * time.Hour)
	require.NoError(t, ledger.RecordSeen(ctx, []SeenRecord{
		{URL: "https://example.com/a", SourceName: "Other", Title: "Changed"},
		{URL: "https://example.com/c", SourceName: "A", Title: "C"},
		{URL: "https://example.com/c", SourceName: "A", Title: "C again"},
	}))

	count, err := ledger.SeenCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var row seenRow
	require.NoError(t, ledger.db.Get(&row, `SELECT * FROM seen_urls WHERE url = ?`, "https://example.com/a"))
	assert.Equal(t, "A", row.SourceName)
	assert.Equal(t, "Original", row.Title)
	assert.Equal(t, firstSeen, fromMillis(row.FirstSeenAt))
}

func TestRecordSeenAcrossChunks(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.RecordSeen(ctx, []SeenRecord{{URL: "https://example.com/0", SourceName: "Old", Title: "Kept"}}))

	total := 2*seenChunkSize + 50
	records := make([]SeenRecord, 0, total+1)
	for i := range total {
		records = append(records, SeenRecord{URL: fmt.Sprintf("https://example.com/%d", i), SourceName: "A"})
	}
	records = append(records, SeenRecord{URL: "https://example.com/1", SourceName: "A", Title: "Repeat in last chunk"})

	require.NoError(t, ledger.RecordSeen(ctx, records))

	count, err := ledger.SeenCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, count)

	var row seenRow
	require.NoError(t, ledger.db.Get(&row, `SELECT * FROM seen_urls WHERE url = ?`, "https://example.com/0"))
	assert.Equal(t, "Old", row.SourceName)
	assert.Equal(t, "Kept", row.Title)

	require.NoError(t, ledger.db.Get(&row, `SELECT * FROM seen_urls WHERE url = ?`, "https://example.com/1"))
	assert.Empty(t, row.Title)
}

func TestEvictOlderThan(t *testing.T) {
	ledger, clock := openTestLedger(t)
	ctx := context.Background()
	now := clock.now

	var records []SeenRecord
	for _, age := range []int{0, 10, 29, 31, 45, 400} {
		records = append(records, SeenRecord{
			URL:         fmt.Sprintf("https://example.com/%d-days", age),
			SourceName:  "A",
			FirstSeenAt: now.AddDate(0, 0, -age),
		})
	}
	require.NoError(t, ledger.RecordSeen(ctx, records))

	removed, err := ledger.EvictOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	var oldest int64
	require.NoError(t, ledger.db.Get(&oldest, `SELECT MIN(first_seen_at) FROM seen_urls`))
	assert.False(t, fromMillis(oldest).Before(now.AddDate(0, 0, -30)))

	set, err := ledger.LoadSeenSet(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.Contains(t, set, "https://example.com/29-days")
	assert.NotContains(t, set, "https://example.com/31-days")

	removed, err = ledger.EvictOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEvictRejectsNonPositiveRetention(t *testing.T) {
	ledger, _ := openTestLedger(t)

	_, err := ledger.EvictOlderThan(context.Background(), 0)
	assert.Error(t, err)
}

func TestRunStatsHistory(t *testing.T) {
	ledger, clock := openTestLedger(t)
	ctx := context.Background()

	for i, runID := range []string{"run-1", "run-2"} {
		clock.now = clock.now.Add(time.Duration(i) * time.Hour)

		require.NoError(t, ledger.RecordFeedRunStat(ctx, FeedRunStat{
			RunID:        runID,
			SourceName:   "A",
			ItemsFetched: 5,
			ItemsNew:     3,
			Succeeded:    true,
			DurationMs:   120,
		}))
		require.NoError(t, ledger.RecordFeedRunStat(ctx, FeedRunStat{
			RunID:       runID,
			SourceName:  "B",
			Succeeded:   false,
			ErrorDetail: "HTTP error: 500 Internal Server Error",
		}))
		require.NoError(t, ledger.RecordDigestRunStat(ctx, DigestRunStat{
			RunID:            runID,
			TotalSources:     2,
			SucceededSources: 1,
			FailedSources:    1,
			NewItemCount:     3,
			PublishedCount:   2,
			DuplicateCount:   2,
		}))
	}

	runs, err := ledger.RecentDigestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, 3, runs[0].NewItemCount)
	assert.Equal(t, 2, runs[0].PublishedCount)
	assert.Equal(t, clock.now, runs[0].GeneratedAt)

	runs, err = ledger.RecentDigestRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	feeds, err := ledger.FeedRunStats(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "A", feeds[0].SourceName)
	assert.True(t, feeds[0].Succeeded)
	assert.Equal(t, int64(120), feeds[0].DurationMs)
	assert.False(t, feeds[1].Succeeded)
	assert.Contains(t, feeds[1].ErrorDetail, "500")
}

func TestDuplicateDigestRunIsRejected(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.RecordDigestRunStat(ctx, DigestRunStat{RunID: "same"}))
	assert.Error(t, ledger.RecordDigestRunStat(ctx, DigestRunStat{RunID: "same"}))
}
