package document

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"marl/internal/arl"
)

// BoundaryRune is the Braille Pattern Blank used as the sentinel that opens
// each data table's header row.
const BoundaryRune = '\u2800'

// MinTokenLength is the minimum length, in characters, of a token candidate.
const MinTokenLength = 128

// Class is the semantic kind of a node.
type Class int

const (
	Irrelevant Class = iota
	RegionMarker
	DateCandidate
	TableBoundary
	TokenCandidate
)

func (c Class) String() string {
	switch c {
	case RegionMarker:
		return "region"
	case DateCandidate:
		return "date"
	case TableBoundary:
		return "boundary"
	case TokenCandidate:
		return "token"
	default:
		return "irrelevant"
	}
}

// Classification is the result of classifying one node. Only the payload
// field matching Class is set.
type Classification struct {
	Class  Class
	Region string
	Date   arl.Date
	Token  string
}

// Classify reports what n can contribute to a record. Dates strictly before
// today are rejected; a text node's first parseable date decides.
// Classify has no state.
func Classify(n Node, today arl.Date) Classification {
	switch n.Kind {
	case KindImage:
		name, _, _ := strings.Cut(n.Text, "/")
		name = strings.TrimSpace(name)
		if name == "" {
			return Classification{}
		}
		return Classification{Class: RegionMarker, Region: name}

	case KindText:
		if strings.ContainsRune(n.Text, BoundaryRune) {
			return Classification{Class: TableBoundary}
		}
		d, ok := firstDate(n.Text)
		if !ok || d.Before(today) {
			return Classification{}
		}
		return Classification{Class: DateCandidate, Date: d}

	case KindCode:
		if !IsToken(n.Text) {
			return Classification{}
		}
		return Classification{Class: TokenCandidate, Token: n.Text}
	}
	return Classification{}
}

// IsToken reports whether s passes the structural token filter: at least
// MinTokenLength characters, each a Unicode letter (L) or number (N).
func IsToken(s string) bool {
	if utf8.RuneCountInString(s) < MinTokenLength {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// firstDate returns the first whitespace-delimited field of s that parses
// as a YYYY-MM-DD date.
func firstDate(s string) (arl.Date, bool) {
	for _, f := range strings.Fields(s) {
		if d, err := arl.ParseDate(f); err == nil {
			return d, true
		}
	}
	return arl.Date{}, false
}
