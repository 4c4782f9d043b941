// Package arl defines the token record extracted from the upstream document
// and the in-memory directory used to select, list and invalidate records.
package arl

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in the upstream document
// and in the cache file.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component.
// The zero value is the zero time's date and sorts before every real date.
type Date struct {
	t time.Time
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string { return d.t.Format(DateLayout) }

// MarshalText encodes the date as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD date.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return fmt.Errorf("parse date %q: %w", b, err)
	}
	*d = parsed
	return nil
}

// Record is one extracted token entry.
type Record struct {
	Region string `json:"region"`
	Value  string `json:"value"`
	Expiry Date   `json:"expiry"`
}

// ExpiredAt reports whether the record is unusable on the given date.
// A record expiring today is still usable.
func (r Record) ExpiredAt(today Date) bool {
	return r.Expiry.Before(today)
}

// Prune returns the records that are still usable on today, preserving order.
func Prune(records []Record, today Date) []Record {
	kept := records[:0:0]
	for _, r := range records {
		if !r.ExpiredAt(today) {
			kept = append(kept, r)
		}
	}
	return kept
}
