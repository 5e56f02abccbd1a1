package view

import (
	"spendlog/internal/core"
	"spendlog/internal/derive"
	"spendlog/internal/live"
)

// List is the record table: a free-text filter over descriptions.
type List struct {
	*View
	query  *live.Cell[string]
	annual *live.Cell[core.GroupingMode]
}

// NewList starts with an empty query in monthly mode.
func NewList(records live.Source[[]core.Record]) *List {
	query := live.NewCell("")
	mode := live.NewCell(core.Monthly)
	return &List{
		View:   Derive(records, query, mode, derive.FilterByText),
		query:  query,
		annual: mode,
	}
}

// SetQuery passes q through untouched; normalization happens in the filter.
func (l *List) SetQuery(q string) { l.query.Set(q) }

func (l *List) SetAnnual(annual bool) { l.annual.Set(core.ModeFromToggle(annual)) }

func (l *List) Query() string { return l.query.Get() }

// Stats is the per-bucket statistics view: a category selector.
type Stats struct {
	*View
	category *live.Cell[string]
	annual   *live.Cell[core.GroupingMode]
}

// NewStats starts with every category selected in monthly mode.
func NewStats(records live.Source[[]core.Record]) *Stats {
	category := live.NewCell(derive.AllCategories)
	mode := live.NewCell(core.Monthly)
	return &Stats{
		View:     Derive(records, category, mode, derive.FilterByCategory),
		category: category,
		annual:   mode,
	}
}

// SetCategory selects a category; derive.AllCategories disables filtering.
// An empty value is treated as AllCategories.
func (s *Stats) SetCategory(c string) {
	if c == "" {
		c = derive.AllCategories
	}
	s.category.Set(c)
}

func (s *Stats) SetAnnual(annual bool) { s.annual.Set(core.ModeFromToggle(annual)) }

func (s *Stats) Category() string { return s.category.Get() }
