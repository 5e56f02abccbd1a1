// Package sheets defines the export ports for derived views and the
// adapters that implement them.
package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

// Ports for outbound adapters.
type (
	// StatsWriter replaces the contents of a named statistics sheet.
	StatsWriter interface {
		WriteStats(ctx context.Context, sheet StatsSheet) error
	}

	// RecordWriter replaces the exported copy of the record list.
	RecordWriter interface {
		WriteRecords(ctx context.Context, records []core.Record) error
	}

	// Exporter is implemented by adapters that can do both.
	Exporter interface {
		StatsWriter
		RecordWriter
	}
)

// StatsSheet is one grouped statistics table, rows in display order.
type StatsSheet struct {
	Title      string
	Mode       core.GroupingMode
	Category   string
	Rows       []StatsRow
	GrandTotal decimal.Decimal
}

type StatsRow struct {
	Key     string
	Total   decimal.Decimal
	Records int
}
