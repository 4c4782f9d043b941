package cache

import (
	"fmt"
	"time"

	"marl/internal/arl"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Snapshot is the persisted cache state.
type Snapshot struct {
	// OverallExpiry forces a re-fetch once passed, regardless of record expiries.
	OverallExpiry time.Time `json:"overall_expiry"`
	// ContentHash is the Digest of the last fetched document.
	ContentHash string `json:"content_hash"`
	// Revision identifies the extraction that produced Records.
	// uuid.Nil until the first extraction.
	Revision uuid.UUID `json:"revision"`
	// Records in document order; the first is the default selection.
	Records []arl.Record `json:"records"`
}

// Empty returns the snapshot used on first run or when the cache file is
// unreadable: no records, already expired, no hash.
func Empty() Snapshot {
	return Snapshot{Records: []arl.Record{}}
}

// Digest returns the content hash of a raw document.
func Digest(document string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(document))
}

// pruned returns a copy of s without records expired on today.
func (s Snapshot) pruned(today arl.Date) Snapshot {
	s.Records = arl.Prune(s.Records, today)
	if s.Records == nil {
		s.Records = []arl.Record{}
	}
	return s
}
