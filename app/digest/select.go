// Package digest decides which fetched items make it into a digest.
package digest

import (
	"slices"

	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/samber/lo"
)

// Result is the outcome of one selection pass.
type Result struct {
	// Items is the final digest in publication order, newest first.
	Items []feed.Item

	// NewCount is the number of unseen items after the per-feed cap and
	// before the total cap.
	NewCount int

	// DuplicateCount is the number of capped candidates dropped because their
	// link was already seen, in the ledger or earlier in the same pass.
	DuplicateCount int

	// Candidates is the number of items left after the per-feed cap.
	Candidates int

	// NewBySource counts unseen items per source, before the total cap.
	NewBySource map[string]int
}

// PublishedBySource counts final items per source.
func (r Result) PublishedBySource() map[string]int {
	return lo.CountValuesBy(r.Items, func(item feed.Item) string { return item.SourceName })
}

// Select merges items from every source into a single digest.
//
// Each source's items are ordered newest first and cut to perFeedCap before
// any dedup, so a feed whose recent entries were all seen contributes
// nothing. Items whose link is in seen are dropped, as is any repeat of a
// link already accepted in this pass. Survivors are ordered newest first and
// cut to totalCap. Ties keep the order in which sources first appeared.
//
// Select performs no I/O and does not modify its arguments.
func Select(items []feed.Item, seen map[string]struct{}, perFeedCap, totalCap int) Result {
	result := Result{NewBySource: map[string]int{}}
	if perFeedCap <= 0 || totalCap <= 0 || len(items) == 0 {
		return result
	}

	candidates := make([]feed.Item, 0, len(items))
	for _, group := range groupBySource(items) {
		slices.SortStableFunc(group, newestFirst)
		if len(group) > perFeedCap {
			group = group[:perFeedCap]
		}
		candidates = append(candidates, group...)
	}
	result.Candidates = len(candidates)

	accepted := make(map[string]struct{}, len(candidates))
	survivors := make([]feed.Item, 0, len(candidates))
	for _, item := range candidates {
		if _, ok := seen[item.Link]; ok {
			result.DuplicateCount++
			continue
		}
		if _, ok := accepted[item.Link]; ok {
			result.DuplicateCount++
			continue
		}
		accepted[item.Link] = struct{}{}
		survivors = append(survivors, item)
		result.NewBySource[item.SourceName]++
	}

	slices.SortStableFunc(survivors, newestFirst)

	result.NewCount = len(survivors)
	if len(survivors) > totalCap {
		survivors = survivors[:totalCap]
	}
	result.Items = survivors

	return result
}

// groupBySource returns copies of each source's items, groups ordered by the
// first appearance of their source.
func groupBySource(items []feed.Item) [][]feed.Item {
	order := lo.Uniq(lo.Map(items, func(item feed.Item, _ int) string { return item.SourceName }))
	groups := lo.GroupBy(items, func(item feed.Item) string { return item.SourceName })

	return lo.Map(order, func(source string, _ int) []feed.Item {
		return slices.Clone(groups[source])
	})
}

func newestFirst(a, b feed.Item) int {
	return b.PublishedAt.Compare(a.PublishedAt)
}
