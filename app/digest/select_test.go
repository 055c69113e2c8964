package digest

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sun = time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)
	mon = sun.AddDate(0, 0, 1)
	tue = sun.AddDate(0, 0, 2)
	wed = sun.AddDate(0, 0, 3)
)

func item(source, link string, at time.Time) feed.Item {
	return feed.Item{
		ID:          source + ":" + link,
		Link:        link,
		Title:       link,
		PublishedAt: at,
		SourceName:  source,
	}
}

func links(items []feed.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Link
	}
	return out
}

func twoSources() []feed.Item {
	return []feed.Item{
		item("A", "a-mon", mon),
		item("A", "a-tue", tue),
		item("A", "a-wed", wed),
		item("B", "b-sun", sun),
	}
}

func TestSelectTwoSources(t *testing.T) {
	result := Select(twoSources(), nil, 2, 3)

	assert.Equal(t, []string{"a-wed", "a-tue", "b-sun"}, links(result.Items))
	assert.Equal(t, 0, result.DuplicateCount)
	assert.Equal(t, 3, result.NewCount)
	assert.Equal(t, 3, result.Candidates)
}

func TestSelectTwoSourcesWithSeenLink(t *testing.T) {
	seen := map[string]struct{}{"a-wed": {}}

	result := Select(twoSources(), seen, 2, 3)

	assert.Equal(t, []string{"a-tue", "b-sun"}, links(result.Items))
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, result.NewBySource)
}

func TestSelectPerFeedCapAppliesBeforeDedup(t *testing.T) {
	// A's two newest items are seen; the older unseen one is outside the cap.
	seen := map[string]struct{}{"a-wed": {}, "a-tue": {}}

	result := Select(twoSources(), seen, 2, 10)

	assert.Equal(t, []string{"b-sun"}, links(result.Items))
	assert.Equal(t, 2, result.DuplicateCount)
}

func TestSelectNewCountIsBeforeTotalCap(t *testing.T) {
	result := Select(twoSources(), nil, 10, 2)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, 4, result.NewCount)
	assert.Equal(t, map[string]int{"A": 2}, result.PublishedBySource())
}

func TestSelectIsIdempotentAgainstRecordedLinks(t *testing.T) {
	items := twoSources()

	first := Select(items, map[string]struct{}{}, 5, 5)
	require.NotEmpty(t, first.Items)

	seen := map[string]struct{}{}
	for _, it := range first.Items {
		seen[it.Link] = struct{}{}
	}

	second := Select(items, seen, 5, 5)
	assert.Empty(t, second.Items)
	assert.Equal(t, 0, second.NewCount)
	assert.Equal(t, len(first.Items), second.DuplicateCount)
}

func TestSelectRepeatedLinkWithinRun(t *testing.T) {
	items := []feed.Item{
		item("A", "shared", tue),
		item("B", "shared", wed),
		item("B", "b-only", mon),
	}

	result := Select(items, nil, 5, 5)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "A", result.Items[0].SourceName, "first occurrence in source order wins")
	assert.Equal(t, "shared", result.Items[0].Link)
	assert.Equal(t, 1, result.DuplicateCount)
}

func TestSelectStableForEqualTimestamps(t *testing.T) {
	items := []feed.Item{
		item("A", "a1", mon),
		item("A", "a2", mon),
		item("B", "b1", mon),
		item("A", "a3", mon),
	}

	result := Select(items, nil, 10, 10)

	assert.Equal(t, []string{"a1", "a2", "a3", "b1"}, links(result.Items))
}

func TestSelectEdgeCases(t *testing.T) {
	t.Run("no items", func(t *testing.T) {
		result := Select(nil, nil, 10, 10)
		assert.Empty(t, result.Items)
		assert.Zero(t, result.NewCount)
		assert.Zero(t, result.DuplicateCount)
	})

	t.Run("zero per-feed cap", func(t *testing.T) {
		result := Select(twoSources(), nil, 0, 10)
		assert.Empty(t, result.Items)
		assert.Zero(t, result.NewCount)
	})

	t.Run("zero total cap", func(t *testing.T) {
		result := Select(twoSources(), nil, 10, 0)
		assert.Empty(t, result.Items)
		assert.Zero(t, result.NewCount)
	})
}

func TestSelectDoesNotModifyInput(t *testing.T) {
	items := twoSources()
	before := links(items)

	Select(items, nil, 1, 1)

	assert.Equal(t, before, links(items))
}

func TestSelectInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var items []feed.Item
		sources := 1 + rng.Intn(5)
		for s := 0; s < sources; s++ {
			for i := 0; i < rng.Intn(20); i++ {
				at := sun.Add(time.Duration(rng.Intn(72)) * time.Hour)
				items = append(items, item(fmt.Sprintf("S%d", s), fmt.Sprintf("s%d-%d", s, rng.Intn(30)), at))
			}
		}

		seen := map[string]struct{}{}
		for _, it := range items {
			if rng.Intn(4) == 0 {
				seen[it.Link] = struct{}{}
			}
		}

		perFeedCap := 1 + rng.Intn(8)
		totalCap := 1 + rng.Intn(15)
		result := Select(items, seen, perFeedCap, totalCap)

		assert.LessOrEqual(t, len(result.Items), totalCap)
		assert.LessOrEqual(t, result.Candidates, perFeedCap*sources)
		assert.Equal(t, result.Candidates, result.NewCount+result.DuplicateCount)

		for source, n := range result.NewBySource {
			assert.LessOrEqual(t, n, perFeedCap, "source %s", source)
		}

		unique := map[string]struct{}{}
		for i, it := range result.Items {
			_, wasSeen := seen[it.Link]
			assert.False(t, wasSeen, "seen link %s published", it.Link)

			_, dup := unique[it.Link]
			assert.False(t, dup, "link %s published twice", it.Link)
			unique[it.Link] = struct{}{}

			if i > 0 {
				assert.False(t, result.Items[i-1].PublishedAt.Before(it.PublishedAt), "items out of order at %d", i)
			}
		}
	}
}
