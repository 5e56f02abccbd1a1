package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Fashion        Category = "fashion"
	Groceries      Category = "groceries"
	Cryptocurrency Category = "cryptocurrency"
)

const (
	Monthly GroupingMode = "monthly"
	Annual  GroupingMode = "annual"
)

type (
	Category string

	// GroupingMode selects how records are bucketed by date.
	GroupingMode string

	Date struct {
		time.Time
	}

	// Record is a single expense entry. Once created its ID never changes;
	// edits replace the whole record.
	Record struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
		Date        Date            `json:"date"`
	}
)

var categories = []Category{Fashion, Groceries, Cryptocurrency}

var (
	ErrEmptyID          = errors.New("empty id")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// ValidationError reports a record that cannot be accepted as is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Categories returns the fixed set of record categories.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ModeFromToggle maps the annual/monthly switch to a GroupingMode.
func ModeFromToggle(annual bool) GroupingMode {
	if annual {
		return Annual
	}
	return Monthly
}

// IsAnnual returns true for the annual grouping.
func (m GroupingMode) IsAnnual() bool {
	return m == Annual
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrEmptyID}
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	if len(r.Description) > 200 {
		return &ValidationError{Field: "description", Err: ErrDescriptionLong}
	}
	if !r.Category.Valid() {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if err := r.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	return nil
}

// ExceedsLimit reports whether the amount is strictly above limit.
func (r Record) ExceedsLimit(limit decimal.Decimal) bool {
	return r.Amount.GreaterThan(limit)
}
