package tasks

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sources(names ...string) []feed.Source {
	out := make([]feed.Source, len(names))
	for i, name := range names {
		out[i] = feed.Source{Name: name, URL: "https://" + name + ".example/feed"}
	}
	return out
}

func TestFetchPoolKeepsSourceOrder(t *testing.T) {
	fetcher := &fakeFetcher{
		delays: map[string]time.Duration{"a": 60 * time.Millisecond, "b": 0, "c": 20 * time.Millisecond},
	}
	pool := NewFetchPool(fetcher, 3, 0)

	outcomes := pool.Run(context.Background(), sources("a", "b", "c"))

	require.Len(t, outcomes, 3)
	assert.Equal(t, "a", outcomes[0].SourceName)
	assert.Equal(t, "b", outcomes[1].SourceName)
	assert.Equal(t, "c", outcomes[2].SourceName)
}

func TestFetchPoolIsSequentialByDefault(t *testing.T) {
	fetcher := &fakeFetcher{
		delays: map[string]time.Duration{"a": 10 * time.Millisecond, "b": 10 * time.Millisecond, "c": 10 * time.Millisecond},
	}
	pool := NewFetchPool(fetcher, 0, 0)

	pool.Run(context.Background(), sources("a", "b", "c"))

	assert.Equal(t, 1, fetcher.maxInFlight)
	assert.Len(t, fetcher.started, 3)
}

func assertStartsSpaced(t *testing.T, started []time.Time, gap time.Duration) {
	t.Helper()
	sorted := slices.SortedFunc(slices.Values(started), func(a, b time.Time) int { return a.Compare(b) })
	for i := 1; i < len(sorted); i++ {
		assert.GreaterOrEqual(t, sorted[i].Sub(sorted[i-1]), gap)
	}
}

func TestFetchPoolWaitsBetweenRequests(t *testing.T) {
	fetcher := &fakeFetcher{}
	pool := NewFetchPool(fetcher, 1, 30*time.Millisecond)

	pool.Run(context.Background(), sources("a", "b", "c"))

	require.Len(t, fetcher.started, 3)
	assertStartsSpaced(t, fetcher.started, 25*time.Millisecond)
}

func TestFetchPoolSpacesStartsAcrossWorkers(t *testing.T) {
	fetcher := &fakeFetcher{
		delays: map[string]time.Duration{"a": 200 * time.Millisecond, "b": 200 * time.Millisecond, "c": 200 * time.Millisecond, "d": 200 * time.Millisecond},
	}
	pool := NewFetchPool(fetcher, 4, 40*time.Millisecond)

	began := time.Now()
	pool.Run(context.Background(), sources("a", "b", "c", "d"))

	require.Len(t, fetcher.started, 4)
	assertStartsSpaced(t, fetcher.started, 35*time.Millisecond)
	assert.Greater(t, fetcher.maxInFlight, 1)
	assert.Less(t, time.Since(began), 800*time.Millisecond)
}

func TestFetchPoolIsolatesFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		fail:  map[string]string{"b": "HTTP error: 500"},
		items: map[string][]feed.Item{"a": {{Link: "x"}}, "c": {{Link: "y"}}},
	}
	pool := NewFetchPool(fetcher, 1, 0)

	outcomes := pool.Run(context.Background(), sources("a", "b", "c"))

	assert.True(t, outcomes[0].Succeeded)
	assert.False(t, outcomes[1].Succeeded)
	assert.Equal(t, "HTTP error: 500", outcomes[1].ErrorDetail)
	assert.True(t, outcomes[2].Succeeded)
}

func TestFetchPoolCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewFetchPool(&fakeFetcher{}, 1, time.Hour)
	outcomes := pool.Run(ctx, sources("a", "b"))

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Succeeded)
	assert.False(t, outcomes[1].Succeeded)
	assert.Equal(t, "b", outcomes[1].SourceName)
	assert.NotEmpty(t, outcomes[1].ErrorDetail)
}
