// Package watch keeps the cache warm and streamrip's config in sync while
// running in the foreground.
//
// Two loops run side by side:
//   - a cron job that runs a full session cycle (load, refresh if expired,
//     persist) and patches streamrip with the selected token; a value on
//     Config.Reload runs the same cycle immediately, joining one in flight
//   - a file watcher on the cache directory that re-patches streamrip when
//     another invocation rewrites the cache (e.g. "marl invalidate")
//
// The file watcher never persists, so the watcher's own writes cannot feed
// back into it. A config that already holds the selected token is not
// rewritten.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marl/internal/arl"
	"marl/internal/cache"
	"marl/internal/callgroup"
	"marl/internal/logging"
	"marl/internal/session"
	"marl/internal/streamrip"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultSchedule refreshes at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Config configures a Watcher.
type Config struct {
	Store   *cache.Store
	Fetcher session.Fetcher
	// Schedule is a five-field cron expression. Empty means DefaultSchedule.
	Schedule string
	// StreamripPath is the resolved config file to keep patched. Empty
	// disables patching.
	StreamripPath string
	// Region selects the record to patch in; empty selects the default.
	Region string
	// Reload, when non-nil, triggers an immediate refresh on every receive
	// (typically SIGHUP).
	Reload <-chan os.Signal
	// Now returns the current time; nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Watcher runs the refresh and sync loops.
type Watcher struct {
	cfg    Config
	logger *slog.Logger

	refreshes callgroup.Group[string]

	// mu serializes streamrip patches and guards revision.
	mu       sync.Mutex
	revision uuid.UUID
}

// New creates a Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("watch: nil store")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Watcher{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "watch"),
	}, nil
}

// Run starts watching the cache directory, refreshes once, then runs both
// loops until ctx is cancelled.
// A failed scheduled refresh is logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	dir := filepath.Dir(w.cfg.Store.Path())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch cache directory: %w", err)
	}

	if err := w.Refresh(ctx); err != nil {
		w.logger.Error("initial refresh failed", "error", err)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create cron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.CronJob(w.cfg.Schedule, false),
		gocron.NewTask(func() {
			if joined, err := w.refresh(ctx); err != nil && !joined {
				w.logger.Error("scheduled refresh failed", "error", err)
			}
		}),
		gocron.WithName("refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("create refresh job %q: %w", w.cfg.Schedule, err)
	}

	s.Start()
	w.logger.Info("watching", "schedule", w.cfg.Schedule, "cache", w.cfg.Store.Path(), "streamrip", w.cfg.StreamripPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})
	g.Go(func() error {
		return w.watchCache(gctx, fw)
	})
	if w.cfg.Reload != nil {
		g.Go(func() error {
			return w.watchReload(gctx)
		})
	}
	return g.Wait()
}

// Refresh runs one full session cycle and patches streamrip. A call made
// while another refresh is running waits for it and shares its result.
func (w *Watcher) Refresh(ctx context.Context) error {
	_, err := w.refresh(ctx)
	return err
}

func (w *Watcher) refresh(ctx context.Context) (bool, error) {
	return w.refreshes.Do(ctx, "refresh", func() error {
		return w.runCycle(ctx)
	})
}

func (w *Watcher) runCycle(ctx context.Context) error {
	s, err := session.Open(ctx, session.Config{
		Store:   w.cfg.Store,
		Fetcher: w.cfg.Fetcher,
		Now:     w.cfg.Now(),
		Logger:  w.logger,
	})
	if err != nil {
		return err
	}
	if err := s.Save(); err != nil {
		return err
	}
	w.logger.Debug("cycle complete", "fetched", s.Refreshed(), "records", s.Directory().Len())
	w.noteRevision(s.Snapshot().Revision, "refresh")
	return w.patch(s.Directory())
}

// Sync patches streamrip from the cached snapshot without fetching or
// persisting.
func (w *Watcher) Sync() error {
	s := session.Load(w.cfg.Store, w.cfg.Now(), w.logger)
	w.noteRevision(s.Snapshot().Revision, "cache file")
	return w.patch(s.Directory())
}

// noteRevision records the extraction revision last seen and logs when it
// moves, i.e. when the upstream document changed since the previous cycle.
func (w *Watcher) noteRevision(rev uuid.UUID, source string) {
	w.mu.Lock()
	prev := w.revision
	w.revision = rev
	w.mu.Unlock()
	if rev == prev || rev == uuid.Nil {
		return
	}
	w.logger.Info("new extraction", "revision", rev, "previous", prev, "source", source)
}

func (w *Watcher) patch(dir *arl.Directory) error {
	if w.cfg.StreamripPath == "" {
		return nil
	}
	rec, err := dir.Get(w.cfg.Region)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, err := streamrip.Current(w.cfg.StreamripPath); err == nil && cur == rec.Value {
		return nil
	}
	if err := streamrip.Patch(w.cfg.StreamripPath, rec.Value); err != nil {
		return err
	}
	w.logger.Info("streamrip config updated", "region", rec.Region, "expiry", rec.Expiry, "path", w.cfg.StreamripPath)
	return nil
}

func (w *Watcher) watchReload(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-w.cfg.Reload:
			if !ok {
				return nil
			}
			w.logger.Info("refresh requested", "signal", sig.String())
			if joined, err := w.refresh(ctx); err != nil && !joined {
				w.logger.Error("requested refresh failed", "error", err)
			}
		}
	}
}

func (w *Watcher) watchCache(ctx context.Context, fw *fsnotify.Watcher) error {
	cachePath := filepath.Clean(w.cfg.Store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != cachePath {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			w.logger.Debug("cache file changed", "op", ev.Op.String())
			if err := w.Sync(); err != nil {
				w.logger.Warn("sync after cache change failed", "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
