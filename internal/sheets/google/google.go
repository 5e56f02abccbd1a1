// Package google exports derived views to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendlog/internal/core"
	"spendlog/internal/log"
	ports "spendlog/internal/sheets"
)

const valueInputOption = "USER_ENTERED"

type Config struct {
	SpreadsheetID      string
	RecordsSheet       string
	ServiceAccountFile string
	ServiceAccountJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	recordsSheet  string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	base := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if creds != nil {
		base = append(base, goption.WithCredentialsJSON(creds))
	}

	svc, err := gsheet.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)

	return newWithService(svc, cfg, logger), nil
}

func newWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	records := strings.TrimSpace(cfg.RecordsSheet)
	if records == "" {
		records = "Expenses"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		recordsSheet:  records,
		logger:        logger,
	}
}

// credentials reads inline JSON first, then the file, then
// GOOGLE_APPLICATION_CREDENTIALS. nil means the caller supplies auth.
func credentials(cfg Config) ([]byte, error) {
	if j := strings.TrimSpace(cfg.ServiceAccountJSON); j != "" {
		return []byte(j), nil
	}
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// WriteStats clears the sheet titled sheet.Title and writes a header plus
// one key,total,records row per bucket and a closing total row.
func (c *Client) WriteStats(ctx context.Context, sheet ports.StatsSheet) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if sheet.Title == "" {
		return errors.New("stats sheet needs a title")
	}
	if err := c.replace(ctx, sheet.Title, "A:C", statsValues(sheet)); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Wrote stats sheet",
		"sheet", sheet.Title,
		log.FieldMode, sheet.Mode,
		"rows", len(sheet.Rows))
	return nil
}

// WriteRecords rewrites the records sheet with one row per record.
func (c *Client) WriteRecords(ctx context.Context, records []core.Record) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.replace(ctx, c.recordsSheet, "A:E", recordValues(records)); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Wrote records sheet", "sheet", c.recordsSheet, log.FieldRecords, len(records))
	return nil
}

func (c *Client) replace(ctx context.Context, sheet, cols string, values [][]any) error {
	clearRange := fmt.Sprintf("%s!%s", sheet, cols)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	writeRange := fmt.Sprintf("%s!A1", sheet)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", writeRange, err)
	}
	return nil
}

func statsValues(sheet ports.StatsSheet) [][]any {
	values := make([][]any, 0, len(sheet.Rows)+2)
	values = append(values, []any{"Key", "Total", "Records"})
	for _, row := range sheet.Rows {
		values = append(values, []any{row.Key, row.Total.StringFixed(2), row.Records})
	}
	values = append(values, []any{"Total", sheet.GrandTotal.StringFixed(2), ""})
	return values
}

func recordValues(records []core.Record) [][]any {
	values := make([][]any, 0, len(records)+1)
	values = append(values, []any{"Date", "Description", "Amount", "Category", "ID"})
	for _, r := range records {
		values = append(values, []any{
			r.Date.Format("2006-01-02"),
			r.Description,
			r.Amount.StringFixed(2),
			string(r.Category),
			r.ID,
		})
	}
	return values
}
