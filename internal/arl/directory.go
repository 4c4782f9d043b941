package arl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by NotFoundError via errors.Is.
var ErrNotFound = errors.New("region not found")

// ErrEmptyDirectory is returned when no record at all can be served.
var ErrEmptyDirectory = errors.New("no ARLs available")

// NotFoundError reports a region with no current record, along with the
// regions that do have one.
type NotFoundError struct {
	Region  string
	Regions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Regions) == 0 {
		return fmt.Sprintf("region %q not found: no regions available", e.Region)
	}
	return fmt.Sprintf("region %q not found, valid regions: %s", e.Region, strings.Join(e.Regions, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Directory is the query layer over the current record set.
// Record order is document order; the first record is the default.
// An empty region selector means "the default record".
// Not safe for concurrent use.
type Directory struct {
	records []Record
}

// NewDirectory creates a Directory over a copy of records.
func NewDirectory(records []Record) *Directory {
	return &Directory{records: append([]Record(nil), records...)}
}

// Len returns the number of records.
func (d *Directory) Len() int { return len(d.records) }

// Records returns a copy of the current records in order.
func (d *Directory) Records() []Record {
	return append([]Record(nil), d.records...)
}

// Regions returns distinct region names in first-occurrence order.
func (d *Directory) Regions() []string {
	seen := make(map[string]bool, len(d.records))
	regions := make([]string, 0, len(d.records))
	for _, r := range d.records {
		if seen[r.Region] {
			continue
		}
		seen[r.Region] = true
		regions = append(regions, r.Region)
	}
	return regions
}

// Get returns the default record when region is empty, or the first record
// whose region matches exactly (case-sensitive).
func (d *Directory) Get(region string) (Record, error) {
	i, err := d.index(region)
	if err != nil {
		return Record{}, err
	}
	return d.records[i], nil
}

// Invalidate removes the default record when region is empty, or the first
// record matching region. Invalidating an absent region is a no-op.
// It reports whether a record was removed.
func (d *Directory) Invalidate(region string) (Record, bool) {
	i, err := d.index(region)
	if err != nil {
		return Record{}, false
	}
	removed := d.records[i]
	d.records = append(d.records[:i:i], d.records[i+1:]...)
	return removed, true
}

func (d *Directory) index(region string) (int, error) {
	if region == "" {
		if len(d.records) == 0 {
			return -1, ErrEmptyDirectory
		}
		return 0, nil
	}
	for i, r := range d.records {
		if r.Region == region {
			return i, nil
		}
	}
	return -1, &NotFoundError{Region: region, Regions: d.Regions()}
}
