// Package worker keeps an external copy of the statistics views up to date.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/cache"
	"spendlog/internal/log"
	"spendlog/internal/sheets"
	"spendlog/internal/store"
	"spendlog/internal/view"
)

// ExportWorker re-reads the shared record store and rewrites the exported
// statistics whenever a record changes.
type ExportWorker struct {
	store    *store.Store
	exporter sheets.Exporter
	title    string
	logger   *log.Logger

	// mu serializes exports; the stats view inputs are toggled per export.
	mu    sync.Mutex
	stats *view.Stats

	// written holds the fingerprint of the last content sent to each sheet.
	// Unchanged content is skipped until the entry expires.
	written *cache.LRU[string]
}

// DefaultRewriteInterval bounds how long an unchanged sheet goes without
// being rewritten, so manual edits in the spreadsheet are eventually undone.
const DefaultRewriteInterval = time.Hour

// recordsSheetKey is the fingerprint key for the record list. Stats titles
// always end in a mode suffix, so it cannot collide with them.
const recordsSheetKey = "records"

type Option func(*options)

type options struct {
	rewriteInterval time.Duration
	now             func() time.Time
}

func WithRewriteInterval(d time.Duration) Option {
	return func(o *options) { o.rewriteInterval = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewExportWorker(st *store.Store, exporter sheets.Exporter, title string, logger *log.Logger, opts ...Option) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if title == "" {
		title = "Stats"
	}
	o := options{rewriteInterval: DefaultRewriteInterval, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ExportWorker{
		store:    st,
		exporter: exporter,
		title:    title,
		logger:   logger.WithComponent(log.ComponentWorker),
		stats:    view.NewStats(st),
		written:  cache.NewLRU[string](16, o.rewriteInterval, cache.WithClock(o.now)),
	}
}

// HandleRecordChange processes a single record change message from AMQP.
func (w *ExportWorker) HandleRecordChange(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing record change",
		log.FieldOperation, msg.Op,
		log.FieldRecordID, msg.ID,
		"timestamp", msg.Timestamp)
	return w.Refresh(ctx)
}

// Refresh reloads the store and exports every view.
func (w *ExportWorker) Refresh(ctx context.Context) error {
	w.store.Reload(ctx)
	return w.Export(ctx)
}

// Export writes the monthly and annual statistics sheets and the record list.
// Sheets whose content matches the last successful write are skipped.
func (w *ExportWorker) Export(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	skipped := 0
	for _, annual := range []bool{false, true} {
		w.stats.SetAnnual(annual)
		res := w.stats.Current()
		sheet := StatsSheet(SheetTitle(w.title, annual), w.stats.Category(), res)
		wrote, err := w.writeIfChanged(sheet.Title, sheet, func() error {
			return w.exporter.WriteStats(ctx, sheet)
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", sheet.Title, err)
		}
		if !wrote {
			skipped++
		}
	}

	records := w.store.Snapshot()
	wrote, err := w.writeIfChanged(recordsSheetKey, records, func() error {
		return w.exporter.WriteRecords(ctx, records)
	})
	if err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	if !wrote {
		skipped++
	}

	w.logger.InfoContext(ctx, "Export complete",
		log.FieldOperation, log.OpExport,
		log.FieldRecords, len(records),
		"unchanged_sheets", skipped)
	return nil
}

func (w *ExportWorker) writeIfChanged(key string, content any, write func() error) (bool, error) {
	sum, err := fingerprint(content)
	if err != nil {
		return false, err
	}
	if last, ok := w.written.Get(key); ok && last == sum {
		return false, nil
	}
	if err := write(); err != nil {
		w.written.Delete(key)
		return false, err
	}
	w.written.Set(key, sum)
	return true, nil
}

func fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Close detaches the worker's view from the store.
func (w *ExportWorker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Close()
}

// SheetTitle names the sheet for one grouping mode, e.g. "Stats Monthly".
func SheetTitle(base string, annual bool) string {
	if annual {
		return base + " Annual"
	}
	return base + " Monthly"
}

// StatsSheet lays a view result out as rows in key order.
func StatsSheet(title, category string, res view.Result) sheets.StatsSheet {
	rows := make([]sheets.StatsRow, 0, len(res.Keys))
	for _, k := range res.Keys {
		rows = append(rows, sheets.StatsRow{
			Key:     k,
			Total:   res.Totals[k],
			Records: len(res.Buckets[k]),
		})
	}
	return sheets.StatsSheet{
		Title:      title,
		Mode:       res.Mode,
		Category:   category,
		Rows:       rows,
		GrandTotal: res.GrandTotal,
	}
}
