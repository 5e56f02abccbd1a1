// Package http serves the JSON API over the record service and the live
// list and stats views.
//
// This file implements parsing and validation of record input. Bodies may be
// JSON or form encoded; both go through the same field rules.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

const (
	maxBodyBytes         = 64 << 10
	minDescriptionLength = 3
)

var (
	errDescriptionShort = errors.New("description must be at least 3 characters")
	errAmountTooSmall   = errors.New("amount must be at least 1 in absolute value")
	errMissingCategory  = errors.New("category is required")
)

var minAmount = decimal.NewFromInt(1)

// RequestBodyParser reads a request body once and exposes its fields whether
// it was sent as JSON or as a form.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes from r.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as JSON when it looks like JSON, as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value for key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was present at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseRecordInput builds a record from the parsed body. The returned error
// is a *core.ValidationError naming the first offending field.
func parseRecordInput(p *RequestBodyParser, id string, now time.Time) (core.Record, error) {
	desc := p.Get("description")
	if strings.TrimSpace(desc) == "" {
		return core.Record{}, &core.ValidationError{Field: "description", Err: core.ErrEmptyDescription}
	}
	if utf8.RuneCountInString(desc) < minDescriptionLength {
		return core.Record{}, &core.ValidationError{Field: "description", Err: errDescriptionShort}
	}

	amount, err := parseSignedAmount(p.Get("amount"), parseToggle(p.Get("income")))
	if err != nil {
		return core.Record{}, &core.ValidationError{Field: "amount", Err: err}
	}

	rawCategory := strings.ToLower(p.Get("category"))
	if rawCategory == "" {
		return core.Record{}, &core.ValidationError{Field: "category", Err: errMissingCategory}
	}
	category := core.Category(rawCategory)
	if !category.Valid() {
		return core.Record{}, &core.ValidationError{Field: "category", Err: core.ErrInvalidCategory}
	}

	date := core.Date{Time: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}
	if raw := p.Get("date"); raw != "" {
		date, err = parseDateInput(raw)
		if err != nil {
			return core.Record{}, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		}
	}

	r := core.Record{
		ID:          id,
		Description: desc,
		Amount:      amount,
		Category:    category,
		Date:        date,
	}
	return r, r.Validate()
}

// parseSignedAmount checks the magnitude and applies the sign. Income is
// stored negative; it is selected either by the income flag or by sending
// a negative amount, so an edited income record keeps its sign.
func parseSignedAmount(raw string, income bool) (decimal.Decimal, error) {
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		income = true
	}
	magnitude := amount.Abs()
	if magnitude.LessThan(minAmount) {
		return decimal.Zero, errAmountTooSmall
	}
	if income {
		return magnitude.Neg(), nil
	}
	return magnitude, nil
}

// parseDateInput accepts YYYY-MM-DD or an ISO-8601 UTC timestamp.
func parseDateInput(s string) (core.Date, error) {
	if len(s) == len("2006-01-02") {
		return core.ParseDate(s)
	}
	quoted, err := json.Marshal(s)
	if err != nil {
		return core.Date{}, err
	}
	var d core.Date
	if err := d.UnmarshalJSON(quoted); err != nil {
		return core.Date{}, err
	}
	return d, nil
}
