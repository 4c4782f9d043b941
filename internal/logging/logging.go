// Package logging provides slog helpers shared by every marl component.
//
// Loggers are passed in, never global. main() builds the one base logger
// (text to stderr, stdout is reserved for the token) and components scope it
// once at construction with logger.With("component", name).
// Components must never call slog.SetDefault.
//
// Log at lifecycle boundaries only: cache loaded, refresh, fetch attempt,
// persist. Never per node while extracting.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ComponentKey is the attribute key ComponentFilterHandler filters on.
const ComponentKey = "component"

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger:
//
//	func New(cfg Config) *Client {
//	    logger := logging.Default(cfg.Logger).With("component", "fetch")
//	    ...
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ParseLevel parses a level name such as "debug", "info", "warn" or "error".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// levels is shared by a ComponentFilterHandler and every handler derived
// from it through WithAttrs/WithGroup.
type levels struct {
	mu          sync.RWMutex
	defaultLvl  slog.Level
	byComponent map[string]slog.Level
}

func (l *levels) get(component string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.byComponent[component]; ok && component != "" {
		return lvl
	}
	return l.defaultLvl
}

// lowest returns the most verbose level configured anywhere.
func (l *levels) lowest() slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lowest := l.defaultLvl
	for _, lvl := range l.byComponent {
		if lvl < lowest {
			lowest = lvl
		}
	}
	return lowest
}

// ComponentFilterHandler filters records by level, where the level can be
// overridden per value of the "component" attribute.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *levels
	component string
}

// NewComponentFilterHandler wraps next with a per-component level filter.
// Records without a component use defaultLevel.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &levels{
			defaultLvl:  defaultLevel,
			byComponent: make(map[string]slog.Level),
		},
	}
}

// SetLevel overrides the level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.byComponent[component] = level
}

// Level returns the effective level for component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.levels.get(component)
}

func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Without a bound component the record may still carry one, so let
	// anything through that some override could accept and decide in Handle.
	if h.component != "" {
		return level >= h.levels.get(h.component)
	}
	return level >= h.levels.lowest()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.levels.get(component) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == ComponentKey {
			component = a.Value.String()
		}
	}
	return &ComponentFilterHandler{next: h.next.WithAttrs(attrs), levels: h.levels, component: component}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	return &ComponentFilterHandler{next: h.next.WithGroup(name), levels: h.levels, component: h.component}
}
