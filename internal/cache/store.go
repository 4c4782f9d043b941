// Package cache persists extracted records between invocations and decides
// when the upstream document must be fetched and extracted again.
//
// The cache is a versioned JSON file:
//
//	{"version": 1, "overall_expiry": "...", "content_hash": "...", "revision": "...", "records": [...]}
//
// Writes are atomic via temp file + rename with round-trip validation.
// The store assumes a single writer; two invocations racing on the same
// path resolve as last writer wins.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"marl/internal/arl"
	"marl/internal/extract"
	"marl/internal/logging"

	"github.com/google/uuid"
)

const currentVersion = 1

// TTL is how long a fresh extraction stays valid before a re-fetch is forced.
const TTL = 24 * time.Hour

// envelope is the versioned on-disk format.
type envelope struct {
	Version int `json:"version"`
	Snapshot
}

// Store is the file-backed cache store.
type Store struct {
	path        string
	logger      *slog.Logger
	extractOpts []extract.Option
}

// NewStore creates a Store persisting to path. A nil logger discards output.
func NewStore(path string, logger *slog.Logger, opts ...extract.Option) *Store {
	return &Store{
		path:        path,
		logger:      logging.Default(logger).With("component", "cache"),
		extractOpts: opts,
	}
}

// Path returns the cache file path.
func (s *Store) Path() string { return s.path }

// Load reads the persisted snapshot and prunes records expired at now.
// It never fails: a missing or unreadable file yields Empty().
func (s *Store) Load(now time.Time) Snapshot {
	snap, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("no cache file", "path", s.path)
		} else {
			s.logger.Warn("ignoring unreadable cache file", "path", s.path, "error", err)
		}
		return Empty()
	}

	before := len(snap.Records)
	snap = snap.pruned(arl.DateOf(now))
	s.logger.Debug("cache loaded",
		"records", len(snap.Records),
		"pruned", before-len(snap.Records),
		"expiry", snap.OverallExpiry)
	return snap
}

// NeedsRefresh reports whether snap's overall expiry has passed.
func (s *Store) NeedsRefresh(snap Snapshot, now time.Time) bool {
	return snap.OverallExpiry.Before(now)
}

// Refresh applies a freshly fetched document to snap. If the document is
// byte-identical to the last one, snap is only pruned. Otherwise records are
// re-extracted, the hash is replaced and the overall expiry moves to now+TTL.
// The only error is a *document.ParseError.
func (s *Store) Refresh(snap Snapshot, document string, now time.Time) (Snapshot, error) {
	today := arl.DateOf(now)
	digest := Digest(document)

	if digest == snap.ContentHash {
		s.logger.Info("document unchanged, skipping extraction", "hash", digest)
		return snap.pruned(today), nil
	}

	records, err := extract.Markdown(document, today, s.extractOpts...)
	if err != nil {
		return snap, err
	}

	fresh := Snapshot{
		OverallExpiry: now.Add(TTL),
		ContentHash:   digest,
		Revision:      uuid.Must(uuid.NewV7()),
		Records:       records,
	}.pruned(today)

	s.logger.Info("document extracted",
		"records", len(fresh.Records),
		"hash", digest,
		"revision", fresh.Revision)
	return fresh, nil
}

// Persist atomically overwrites the cache file with snap.
func (s *Store) Persist(snap Snapshot) error {
	if snap.Records == nil {
		snap.Records = []arl.Record{}
	}
	if err := s.flush(snap); err != nil {
		return err
	}
	s.logger.Debug("cache persisted", "path", s.path, "records", len(snap.Records))
	return nil
}

// read loads, migrates and validates the cache file.
func (s *Store) read() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, err
	}

	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Snapshot{}, fmt.Errorf("parse cache file: %w", err)
	}
	if head.Version > currentVersion {
		return Snapshot{}, fmt.Errorf("cache file version %d is newer than supported version %d", head.Version, currentVersion)
	}
	if head.Version < currentVersion {
		if data, err = migrateFile(s.path, data, head.Version); err != nil {
			return Snapshot{}, fmt.Errorf("migrate cache: %w", err)
		}
		s.logger.Info("cache file migrated", "from", head.Version, "to", currentVersion)
	}

	return decode(data)
}

// decode validates data against the snapshot schema and unmarshals it.
func decode(data []byte) (Snapshot, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parse cache file: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Snapshot{}, fmt.Errorf("cache file does not match schema: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("decode cache file: %w", err)
	}
	return env.Snapshot, nil
}

// flush atomically writes the snapshot to disk with round-trip validation.
func (s *Store) flush(snap Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(envelope{Version: currentVersion, Snapshot: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	check, err := os.ReadFile(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", err)
	}
	if _, err := decode(check); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
