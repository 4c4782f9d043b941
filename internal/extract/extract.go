// Package extract assembles token records from a classified node stream.
//
// The upstream document has no row construct that spans the image, text and
// code nodes of one table row, so records are assembled by an accumulator
// with two pending slots (region, expiry). A token completes a record only
// when both slots are filled; emitting a record clears them.
//
// The document contains a second, unrelated token table that uses the same
// code span convention. Extraction halts once the table boundary sentinel
// has been seen BoundaryLimit times.
package extract

import (
	"marl/internal/arl"
	"marl/internal/document"
)

// DefaultBoundaryLimit is the number of boundary sentinels after which the
// extractor has left the first table.
const DefaultBoundaryLimit = 4

// Accumulator is the extraction state machine. Feed classifications in
// document order with Observe; collect results with Records.
type Accumulator struct {
	today         arl.Date
	boundaryLimit int

	region     string
	hasRegion  bool
	expiry     arl.Date
	hasExpiry  bool
	boundaries int

	records []arl.Record
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithBoundaryLimit overrides DefaultBoundaryLimit. Values below 1 are ignored.
func WithBoundaryLimit(n int) Option {
	return func(a *Accumulator) {
		if n > 0 {
			a.boundaryLimit = n
		}
	}
}

// NewAccumulator creates an Accumulator that rejects expiry dates before today.
func NewAccumulator(today arl.Date, opts ...Option) *Accumulator {
	a := &Accumulator{today: today, boundaryLimit: DefaultBoundaryLimit}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Done reports whether the boundary limit has been reached. Once done, the
// accumulator ignores further input.
func (a *Accumulator) Done() bool {
	return a.boundaries >= a.boundaryLimit
}

// Observe applies one classification. It returns false once the accumulator
// is done and the caller should stop feeding it.
func (a *Accumulator) Observe(c document.Classification) bool {
	if a.Done() {
		return false
	}

	switch c.Class {
	case document.TableBoundary:
		a.boundaries++

	case document.RegionMarker:
		// A new image always starts a fresh candidate.
		a.region, a.hasRegion = c.Region, true

	case document.DateCandidate:
		// A rejected date leaves any pending expiry in place.
		if !c.Date.Before(a.today) {
			a.expiry, a.hasExpiry = c.Date, true
		}

	case document.TokenCandidate:
		if !a.hasRegion || !a.hasExpiry {
			return true
		}
		a.records = append(a.records, arl.Record{
			Region: a.region,
			Value:  c.Token,
			Expiry: a.expiry,
		})
		a.reset()
	}
	return true
}

// Records returns the records emitted so far in document order.
func (a *Accumulator) Records() []arl.Record {
	return append([]arl.Record(nil), a.records...)
}

func (a *Accumulator) reset() {
	a.region, a.hasRegion = "", false
	a.expiry, a.hasExpiry = arl.Date{}, false
}

// Nodes runs the extractor over a parsed node sequence.
func Nodes(nodes []document.Node, today arl.Date, opts ...Option) []arl.Record {
	acc := NewAccumulator(today, opts...)
	for _, n := range nodes {
		if acc.Done() {
			break
		}
		acc.Observe(document.Classify(n, today))
	}
	return acc.Records()
}

// Markdown parses src and runs the extractor over it. The only error is a
// *document.ParseError when src cannot be parsed at all.
func Markdown(src string, today arl.Date, opts ...Option) ([]arl.Record, error) {
	nodes, err := document.Parse(src)
	if err != nil {
		return nil, err
	}
	return Nodes(nodes, today, opts...), nil
}
