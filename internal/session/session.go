// Package session runs one invocation's cache lifecycle: load the cached
// snapshot, refresh it from the upstream document when it has expired, serve
// lookups from the record directory and persist the result.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marl/internal/arl"
	"marl/internal/cache"
	"marl/internal/logging"
)

// Fetcher obtains the raw upstream document.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Config configures Open.
type Config struct {
	Store   *cache.Store
	Fetcher Fetcher
	// Now is fixed for the whole invocation so every expiry comparison
	// agrees. Zero means time.Now().
	Now    time.Time
	Logger *slog.Logger
}

// Session holds the snapshot and directory for one invocation.
type Session struct {
	store     *cache.Store
	now       time.Time
	logger    *slog.Logger
	snap      cache.Snapshot
	dir       *arl.Directory
	refreshed bool
}

// Open loads the cache and refreshes it if needed. A fetch failure
// (*fetch.FetchError) or a document that cannot be parsed at all
// (*document.ParseError) is returned as is; an empty record set is not an
// error here but surfaces from Directory().Get.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: nil store")
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	s := &Session{
		store:  cfg.Store,
		now:    now,
		logger: logging.Default(cfg.Logger).With("component", "session"),
	}

	s.snap = s.store.Load(now)
	if s.store.NeedsRefresh(s.snap, now) {
		if cfg.Fetcher == nil {
			return nil, errors.New("session: cache expired and no fetcher configured")
		}
		s.logger.Info("cache expired, refreshing", "expiry", s.snap.OverallExpiry)

		text, err := cfg.Fetcher.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if s.snap, err = s.store.Refresh(s.snap, text, now); err != nil {
			return nil, err
		}
		s.refreshed = true
	}

	s.dir = arl.NewDirectory(s.snap.Records)
	if s.dir.Len() == 0 {
		s.logger.Warn("no usable ARLs in cache or document")
	}
	return s, nil
}

// Load opens the cached snapshot without ever fetching, regardless of its
// overall expiry.
func Load(store *cache.Store, now time.Time, logger *slog.Logger) *Session {
	if now.IsZero() {
		now = time.Now()
	}
	snap := store.Load(now)
	return &Session{
		store:  store,
		now:    now,
		logger: logging.Default(logger).With("component", "session"),
		snap:   snap,
		dir:    arl.NewDirectory(snap.Records),
	}
}

// Directory returns the record directory. Invalidations made through it are
// written back by Save.
func (s *Session) Directory() *arl.Directory { return s.dir }

// Snapshot returns the snapshot with the directory's current records.
func (s *Session) Snapshot() cache.Snapshot {
	snap := s.snap
	snap.Records = s.dir.Records()
	return snap
}

// Refreshed reports whether Open fetched the document.
func (s *Session) Refreshed() bool { return s.refreshed }

// Now returns the invocation's fixed time.
func (s *Session) Now() time.Time { return s.now }

// Save persists the snapshot, including any invalidations.
func (s *Session) Save() error {
	return s.store.Persist(s.Snapshot())
}
