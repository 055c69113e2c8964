package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/render"
)

type fakeLedger struct {
	mu sync.Mutex

	seen        map[string]struct{}
	recorded    []database.SeenRecord
	feedStats   []database.FeedRunStat
	digestStats []database.DigestRunStat
	calls       []string

	evictErr  error
	loadErr   error
	recordErr error
	statErr   error
}

var _ database.Ledger = (*fakeLedger)(nil)

func newFakeLedger(seen ...string) *fakeLedger {
	l := &fakeLedger{seen: map[string]struct{}{}}
	for _, url := range seen {
		l.seen[url] = struct{}{}
	}
	return l
}

func (l *fakeLedger) call(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *fakeLedger) IsSeen(ctx context.Context, url string) (bool, error) {
	_, ok := l.seen[url]
	return ok, nil
}

func (l *fakeLedger) LoadSeenSet(ctx context.Context) (map[string]struct{}, error) {
	l.call("load")
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	out := make(map[string]struct{}, len(l.seen))
	for url := range l.seen {
		out[url] = struct{}{}
	}
	return out, nil
}

func (l *fakeLedger) RecordSeen(ctx context.Context, records []database.SeenRecord) error {
	l.call("record_seen")
	if l.recordErr != nil {
		return l.recordErr
	}
	for _, r := range records {
		if _, ok := l.seen[r.URL]; !ok {
			l.seen[r.URL] = struct{}{}
			l.recorded = append(l.recorded, r)
		}
	}
	return nil
}

func (l *fakeLedger) EvictOlderThan(ctx context.Context, retentionDays int) (int, error) {
	l.call("evict")
	return 0, l.evictErr
}

func (l *fakeLedger) RecordFeedRunStat(ctx context.Context, stat database.FeedRunStat) error {
	l.call("feed_stat")
	if l.statErr != nil {
		return l.statErr
	}
	l.feedStats = append(l.feedStats, stat)
	return nil
}

func (l *fakeLedger) RecordDigestRunStat(ctx context.Context, stat database.DigestRunStat) error {
	l.call("digest_stat")
	if l.statErr != nil {
		return l.statErr
	}
	l.digestStats = append(l.digestStats, stat)
	return nil
}

func (l *fakeLedger) Close() error { return nil }

type fakeRenderer struct {
	digests []render.Digest
	err     error
}

func (r *fakeRenderer) Render(d render.Digest) error {
	if r.err != nil {
		return r.err
	}
	r.digests = append(r.digests, d)
	return nil
}

// fakeFetcher serves canned outcomes per source name, optionally after a
// per-source delay.
type fakeFetcher struct {
	mu sync.Mutex

	items  map[string][]feed.Item
	fail   map[string]string
	delays map[string]time.Duration

	inFlight    int
	maxInFlight int
	started     []time.Time
}

func (f *fakeFetcher) Fetch(ctx context.Context, source feed.Source) feed.FetchOutcome {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.started = append(f.started, time.Now())
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if d := f.delays[source.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}

	outcome := feed.FetchOutcome{SourceName: source.Name, Category: source.Category, URL: source.URL}
	if detail, ok := f.fail[source.Name]; ok {
		outcome.ErrorDetail = detail
		return outcome
	}
	outcome.Succeeded = true
	outcome.Items = f.items[source.Name]
	return outcome
}

var errBoom = errors.New("boom")
