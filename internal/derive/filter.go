// Package derive holds the pure functions that turn a record snapshot into
// the views shown to users: filtered records, buckets, sorted keys and totals.
//
// Every function returns a newly built value and leaves its inputs alone.
package derive

import (
	"strings"
	"unicode"

	"spendlog/internal/core"
)

// AllCategories is the category selector value that disables filtering.
const AllCategories = "all"

// FilterFunc narrows a record snapshot given the current filter value.
type FilterFunc func(filter string, records []core.Record) []core.Record

var (
	_ FilterFunc = FilterByText
	_ FilterFunc = FilterByCategory
)

// FilterByText keeps records whose description contains query, ignoring
// case and whitespace on both sides. An empty query returns records as is.
// When nothing matches the unfiltered records are returned, so a non-empty
// collection never renders as empty.
func FilterByText(query string, records []core.Record) []core.Record {
	needle := normalize(query)
	if needle == "" {
		return records
	}
	var filtered []core.Record
	for _, r := range records {
		if strings.Contains(normalize(r.Description), needle) {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return records
	}
	return filtered
}

// FilterByCategory keeps records of the given category; AllCategories keeps everything.
func FilterByCategory(category string, records []core.Record) []core.Record {
	if category == AllCategories {
		return records
	}
	filtered := make([]core.Record, 0, len(records))
	for _, r := range records {
		if string(r.Category) == category {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
