// Package view binds the record stream and the user's filter and grouping
// inputs into live derived views.
//
// Each view is a two-stage graph. The filter stage combines the filter value
// with the records; the grouping stage combines the filtered records with
// the mode. Keys and totals are read off the grouping stage, so they always
// describe the same population as the buckets, and a mode change never
// re-runs the filter.
package view

import (
	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/derive"
	"spendlog/internal/live"
)

// Grouping is a bucketed view together with the mode that produced it.
type Grouping struct {
	Mode    core.GroupingMode
	Buckets derive.Buckets
}

// Result is everything presentation needs, computed from one grouping.
type Result struct {
	Mode       core.GroupingMode
	Records    int
	Buckets    derive.Buckets
	Keys       []string
	Totals     derive.Totals
	GrandTotal decimal.Decimal
}

// View exposes each stage of a derived pipeline as a live source.
type View struct {
	filtered *live.Derived[[]core.Record]
	grouping *live.Derived[Grouping]
	keys     *live.Derived[[]string]
	totals   *live.Derived[derive.Totals]
	result   *live.Derived[Result]
}

// Derive builds the pipeline. Records, filter and mode must replay their
// current value on subscription; the returned view is populated before
// Derive returns.
func Derive(
	records live.Source[[]core.Record],
	filter live.Source[string],
	mode live.Source[core.GroupingMode],
	filterFn derive.FilterFunc,
) *View {
	filtered := live.Combine[string, []core.Record, []core.Record](filter, records, filterFn)

	grouping := live.Combine[[]core.Record, core.GroupingMode, Grouping](filtered, mode,
		func(rs []core.Record, m core.GroupingMode) Grouping {
			return Grouping{Mode: m, Buckets: derive.GroupBy(rs, m)}
		})

	return &View{
		filtered: filtered,
		grouping: grouping,
		keys:     live.Map[Grouping, []string](grouping, sortedKeysOf),
		totals:   live.Map[Grouping, derive.Totals](grouping, totalsOf),
		result: live.Map[Grouping, Result](grouping, func(g Grouping) Result {
			totals := totalsOf(g)
			n := 0
			for _, rs := range g.Buckets {
				n += len(rs)
			}
			return Result{
				Mode:       g.Mode,
				Records:    n,
				Buckets:    g.Buckets,
				Keys:       sortedKeysOf(g),
				Totals:     totals,
				GrandTotal: derive.GrandTotal(totals),
			}
		}),
	}
}

func sortedKeysOf(g Grouping) []string {
	return derive.SortedKeys(g.Buckets, g.Mode)
}

func totalsOf(g Grouping) derive.Totals {
	return derive.SumBuckets(g.Buckets)
}

// Filtered is the filter stage output.
func (v *View) Filtered() live.Source[[]core.Record] { return v.filtered }

// Grouping is the grouping stage output.
func (v *View) Grouping() live.Source[Grouping] { return v.grouping }

// Keys are the bucket keys in display order.
func (v *View) Keys() live.Source[[]string] { return v.keys }

// Totals are the per-bucket sums.
func (v *View) Totals() live.Source[derive.Totals] { return v.totals }

// Result combines buckets, keys and totals from a single grouping.
func (v *View) Result() live.Source[Result] { return v.result }

// Current returns the latest result.
func (v *View) Current() Result {
	return v.result.Get()
}

// Close detaches every stage. Downstream stages are closed first.
func (v *View) Close() {
	v.result.Close()
	v.totals.Close()
	v.keys.Close()
	v.grouping.Close()
	v.filtered.Close()
}
