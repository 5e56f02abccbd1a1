package derive

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

type (
	// Buckets maps a bucket key to its records in filtered-source order.
	Buckets map[string][]core.Record

	// Totals maps a bucket key to the sum of its amounts.
	Totals map[string]decimal.Decimal
)

// Month names are fixed to English so keys never depend on the host locale.
var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// BucketKey returns the four-digit year in annual mode and the English
// month name in monthly mode.
func BucketKey(r core.Record, mode core.GroupingMode) string {
	if mode.IsAnnual() {
		return strconv.Itoa(r.Date.Year())
	}
	return monthNames[r.Date.Month()-1]
}

// GroupBy partitions records into buckets in a single pass.
func GroupBy(records []core.Record, mode core.GroupingMode) Buckets {
	buckets := make(Buckets)
	for _, r := range records {
		key := BucketKey(r, mode)
		buckets[key] = append(buckets[key], r)
	}
	return buckets
}

// SortedKeys orders bucket keys for rendering. Annual keys go from the most
// recent year down; monthly keys are sorted as plain strings, which is
// alphabetical rather than calendar order.
func SortedKeys(buckets Buckets, mode core.GroupingMode) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	if mode.IsAnnual() {
		sort.SliceStable(keys, func(i, j int) bool {
			return yearOf(keys[i]) > yearOf(keys[j])
		})
		return keys
	}
	sort.Strings(keys)
	return keys
}

// SumBuckets totals the amounts of every bucket, starting each sum at zero.
func SumBuckets(buckets Buckets) Totals {
	totals := make(Totals, len(buckets))
	for key, records := range buckets {
		sum := decimal.Zero
		for _, r := range records {
			sum = sum.Add(r.Amount)
		}
		totals[key] = sum
	}
	return totals
}

// GrandTotal adds up all bucket totals.
func GrandTotal(totals Totals) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range totals {
		sum = sum.Add(v)
	}
	return sum
}

func yearOf(key string) int {
	y, err := strconv.Atoi(key)
	if err != nil {
		return 0
	}
	return y
}
