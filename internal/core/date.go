package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// isoLayout matches the millisecond UTC timestamps written by browsers
// (Date.prototype.toISOString), so stored snapshots stay interchangeable.
const isoLayout = "2006-01-02T15:04:05.000Z"

const dayLayout = "2006-01-02"

var isoTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}.*Z$`)

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, ErrInvalidDate)
	}
	return Date{Time: t}, nil
}

// String returns the date in YYYY-MM-DD format.
func (d Date) String() string {
	return d.UTC().Format(dayLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.UTC().Format(isoLayout))
}

// UnmarshalJSON accepts ISO-8601 UTC timestamps and plain YYYY-MM-DD dates.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if isoTimestamp.MatchString(s) {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, ErrInvalidDate)
		}
		*d = Date{Time: t.UTC()}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
