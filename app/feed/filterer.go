package feed

import (
	"fmt"
	"strings"
)

// Filter keeps or drops items by case-insensitive substring match on one field.
// An item is dropped when the field contains any exclude term, or when
// includes are given and the field contains none of them.
type Filter struct {
	Field    string
	Includes []string
	Excludes []string
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the items that pass every filter, in their original order, and
// the reason each dropped item was rejected keyed by link.
func (f *Filterer) Run(items []Item, filters []Filter) ([]Item, map[string]string) {
	if len(filters) == 0 {
		return items, nil
	}

	kept := make([]Item, 0, len(items))
	rejected := make(map[string]string)
	for _, item := range items {
		if reason, drop := f.applyFilters(item, filters); drop {
			rejected[item.Link] = reason
			continue
		}
		kept = append(kept, item)
	}

	return kept, rejected
}

func (f *Filterer) applyFilters(item Item, filters []Filter) (string, bool) {
	for _, filter := range filters {
		value := f.getFieldValue(item, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude), true
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes), true
			}
		}
	}

	return "", false
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(item Item, field string) string {
	switch field {
	case "title":
		return item.Title
	case "description":
		return item.Description
	case "author":
		return item.Author
	case "link":
		return item.Link
	default:
		return ""
	}
}
